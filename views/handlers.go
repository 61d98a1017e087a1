package views

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
    "context"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

// HandleViewCommand dispatches a view command received from another node
func (viewsManager *ViewsManager) HandleViewCommand(ctx context.Context, command ViewCommand) ViewCommandResponse {
    body, err := DecodeViewCommandBody(command)

    if err != nil {
        Log.Warningf("Node %s received an invalid %v command from %s: %v", viewsManager.self, command.Type, command.Sender, err)

        return ErrorResponse(err)
    }

    switch body := body.(type) {
    case ViewRequestJoinBody:
        viewsManager.handleRequestJoin(body.CacheName, command.Sender)
    case ViewRequestLeaveBody:
        viewsManager.handleRequestLeave(body.CacheName, command.Sender)
    case ViewPrepareBody:
        if err := viewsManager.handlePrepareView(body.CacheName, body.PendingView, body.CommittedView); err != nil {
            return ErrorResponse(err)
        }
    case ViewCommitBody:
        if err := viewsManager.handleCommitView(body.CacheName, body.ViewID); err != nil {
            return ErrorResponse(err)
        }
    case ViewRollbackBody:
        if err := viewsManager.handleRollbackView(body.CacheName, body.NewViewID, body.CommittedViewID); err != nil {
            return ErrorResponse(err)
        }
    case ViewRecoverBody:
        response := SuccessResponse()
        response.Views = viewsManager.handleRecoverViews()

        return response
    }

    return SuccessResponse()
}

func (viewsManager *ViewsManager) handleRequestJoin(cacheName string, joiner Address) {
    Log.Debugf("Node %s requested to join cache %s", joiner, cacheName)

    viewsManager.viewState(cacheName).PendingChanges().RequestJoin(joiner)
    viewsManager.triggerViewInstallation()
}

func (viewsManager *ViewsManager) handleRequestLeave(cacheName string, leaver Address) {
    Log.Debugf("Node %s requested to leave cache %s", leaver, cacheName)

    viewsManager.viewState(cacheName).PendingChanges().RequestLeave(leaver)
    viewsManager.triggerViewInstallation()
}

// handlePrepareView stages pendingView locally. An error vetoes the view.
func (viewsManager *ViewsManager) handlePrepareView(cacheName string, pendingView View, committedView View) error {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        Log.Warningf("Node %s was asked to prepare view %v of cache %s which it does not know", viewsManager.self, pendingView, cacheName)

        return ENoSuchCache
    }

    isMember := pendingView.Contains(viewsManager.self)

    if !isMember && !viewsManager.IsCoordinator() {
        Log.Warningf("Node %s was asked to prepare view %v of cache %s but it is not a member", viewsManager.self, pendingView, cacheName)

        return ENotMember
    }

    listener := viewState.Listener()

    if isMember {
        if listener == nil {
            Log.Warningf("Node %s was asked to prepare view %v of cache %s but it has no listener for the cache", viewsManager.self, pendingView, cacheName)

            return ENoListener
        }

        listener.PreInstallView()
    }

    previousView, err := viewState.PrepareView(pendingView, committedView.ID())

    if err != nil {
        return err
    }

    Log.Debugf("Node %s prepared view %v of cache %s", viewsManager.self, pendingView, cacheName)

    if isMember {
        if err := listener.PrepareView(pendingView, previousView); err != nil {
            Log.Warningf("Listener on node %s vetoed view %v of cache %s: %v", viewsManager.self, pendingView, cacheName, err)

            return err
        }
    }

    viewsManager.notifyLocalNode(DeltaViewPrepared, cacheName, pendingView)

    return nil
}

func (viewsManager *ViewsManager) handleCommitView(cacheName string, viewID int) error {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        return ENoSuchCache
    }

    committedView, changed, err := viewState.CommitView(viewID)

    if err != nil {
        return err
    }

    if !changed {
        return nil
    }

    Log.Infof("Node %s committed view %v of cache %s", viewsManager.self, committedView, cacheName)

    if committedView.Contains(viewsManager.self) {
        if listener := viewState.Listener(); listener != nil {
            listener.CommitView(viewID)
            listener.PostInstallView(viewID)
        }
    }

    viewsManager.notifyLocalNode(DeltaViewCommitted, cacheName, committedView)

    return nil
}

func (viewsManager *ViewsManager) handleRollbackView(cacheName string, newViewID int, committedViewID int) error {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        return ENoSuchCache
    }

    committedView, changed := viewState.RollbackView(newViewID, committedViewID)

    if !changed {
        return nil
    }

    Log.Infof("Node %s rolled back cache %s to view %v", viewsManager.self, cacheName, committedView)

    if committedView.Contains(viewsManager.self) {
        if listener := viewState.Listener(); listener != nil {
            listener.RollbackView(committedViewID)
            listener.PostInstallView(newViewID)
        }
    }

    viewsManager.notifyLocalNode(DeltaViewRolledBack, cacheName, committedView)

    return nil
}

// handleRecoverViews reports the last committed view of every cache this node
// is running. A node that is still joining reports EmptyView.
func (viewsManager *ViewsManager) handleRecoverViews() map[string]View {
    views := make(map[string]View)

    viewsManager.viewsInfo.Range(func(key, value interface{}) bool {
        viewState := value.(*ViewState)

        if viewState.Listener() != nil {
            views[key.(string)] = viewState.CommittedView()
        }

        return true
    })

    return views
}
