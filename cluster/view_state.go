package cluster

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
    "sync"

    . "github.com/PelionIoT/cacheviews/logging"
)

// ViewState holds the committed and pending views of one cache on the local
// node. The committed/pending pair is guarded by its own lock, distinct from
// the lock inside PendingChanges.
type ViewState struct {
    cacheName      string
    committedView  View
    pendingView    *View
    listener       ViewListener
    pendingChanges *PendingChanges
    lock           sync.Mutex
}

func NewViewState(cacheName string) *ViewState {
    return &ViewState{
        cacheName:      cacheName,
        committedView:  EmptyView,
        pendingChanges: NewPendingChanges(cacheName),
    }
}

func (viewState *ViewState) CacheName() string {
    return viewState.cacheName
}

func (viewState *ViewState) CommittedView() View {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    return viewState.committedView
}

// PendingView returns nil unless a prepare is outstanding for this cache
func (viewState *ViewState) PendingView() *View {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    if viewState.pendingView == nil {
        return nil
    }

    pendingView := *viewState.pendingView

    return &pendingView
}

func (viewState *ViewState) Listener() ViewListener {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    return viewState.listener
}

// SetListener registers the state transfer hook for this cache. A nil listener
// unregisters it.
func (viewState *ViewState) SetListener(listener ViewListener) {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    viewState.listener = listener
}

func (viewState *ViewState) PendingChanges() *PendingChanges {
    return viewState.pendingChanges
}

// PrepareView stages pendingView. committedViewID is the id of the view the
// coordinator believes is committed. A mismatch is logged but tolerated since
// a node that is still joining has no committed view yet.
func (viewState *ViewState) PrepareView(pendingView View, committedViewID int) (View, error) {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    if pendingView.viewID <= viewState.committedView.viewID {
        Log.Warningf("Cache %s: refusing to prepare view %v since view %d is already committed", viewState.cacheName, pendingView, viewState.committedView.viewID)

        return viewState.committedView, EStaleView
    }

    if viewState.committedView.viewID != committedViewID {
        Log.Warningf("Cache %s: coordinator claims committed view id is %d but the local committed view is %v", viewState.cacheName, committedViewID, viewState.committedView)
    }

    if viewState.pendingView != nil && viewState.pendingView.viewID != pendingView.viewID {
        Log.Warningf("Cache %s: replacing pending view %v with %v", viewState.cacheName, *viewState.pendingView, pendingView)
    }

    viewState.pendingView = &pendingView
    viewState.pendingChanges.ObserveViewID(pendingView.viewID)

    return viewState.committedView, nil
}

// CommitView makes the pending view with id viewID the committed view. It
// reports false without an error if there is nothing to commit, which includes
// the redundant re-commit of the already committed id.
func (viewState *ViewState) CommitView(viewID int) (View, bool, error) {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    if viewState.pendingView == nil {
        if viewID != viewState.committedView.viewID {
            Log.Debugf("Cache %s: ignoring commit of view %d since there is no pending view. Committed view is %v", viewState.cacheName, viewID, viewState.committedView)
        }

        return viewState.committedView, false, nil
    }

    if viewState.pendingView.viewID != viewID {
        if viewID == viewState.committedView.viewID {
            Log.Debugf("Cache %s: view %d is already committed, keeping pending view %v", viewState.cacheName, viewID, *viewState.pendingView)

            return viewState.committedView, false, nil
        }

        Log.Errorf("Cache %s: asked to commit view %d but the pending view is %v", viewState.cacheName, viewID, *viewState.pendingView)

        return viewState.committedView, false, EIllegalViewCommit
    }

    viewState.committedView = *viewState.pendingView
    viewState.pendingView = nil
    viewState.pendingChanges.ResetChanges(viewState.committedView)

    return viewState.committedView, true, nil
}

// RollbackView discards any pending view and re-stamps the committed
// membership with newViewID. A rollback to an id that is not newer than the
// committed view has already been applied and is ignored.
func (viewState *ViewState) RollbackView(newViewID int, committedViewID int) (View, bool) {
    viewState.lock.Lock()
    defer viewState.lock.Unlock()

    if newViewID <= viewState.committedView.viewID {
        Log.Debugf("Cache %s: ignoring rollback to view %d since view %v is already committed", viewState.cacheName, newViewID, viewState.committedView)

        return viewState.committedView, false
    }

    if viewState.committedView.viewID != committedViewID {
        Log.Debugf("Cache %s: rollback expected committed view %d but the local committed view is %v", viewState.cacheName, committedViewID, viewState.committedView)
    }

    viewState.pendingView = nil
    viewState.committedView = NewView(newViewID, viewState.committedView.members)
    viewState.pendingChanges.ResetChanges(viewState.committedView)

    return viewState.committedView, true
}
