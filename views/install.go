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
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/telemetry"
)

const (
    phasePrepare  = "prepare"
    phaseCommit   = "commit"
    phaseRollback = "rollback"
    phaseRecover  = "recover"
)

// clusterInstallView drives pendingView through prepare and then commit, or
// rollback if any target vetoes or fails to answer. It must only be called on
// the coordinator with a view returned by CreatePendingView.
func (viewsManager *ViewsManager) clusterInstallView(ctx context.Context, viewState *ViewState, pendingView View) error {
    cacheName := viewState.CacheName()
    pendingChanges := viewState.PendingChanges()
    committedView := viewState.CommittedView()
    startTime := time.Now()
    finished := false

    defer func() {
        if finished {
            telemetry.InstallDuration.WithLabelValues(cacheName).Observe(time.Since(startTime).Seconds())

            return
        }

        // nothing was committed or rolled back locally so the accumulator still
        // holds this proposal's guard
        if pendingChanges.CancelInstallation(pendingView.ID()) {
            Log.Warningf("Installation of view %v of cache %s was abandoned", pendingView, cacheName)

            telemetry.Installations.WithLabelValues(cacheName, "aborted").Inc()
        }
    }()

    targets := pendingChanges.FilterLeavers(viewsManager.others(pendingView.Members()))

    Log.Infof("Coordinator %s installing view %v of cache %s. Committed view is %v", viewsManager.self, pendingView, cacheName, committedView)

    prepareErr := viewsManager.clusterPrepareView(ctx, cacheName, pendingView, committedView, targets)

    if ctx.Err() != nil {
        return ctx.Err()
    }

    if !viewsManager.IsCoordinator() {
        Log.Warningf("Node %s stopped being coordinator while installing view %v of cache %s", viewsManager.self, pendingView, cacheName)

        return ENoCoordinator
    }

    targets = pendingChanges.FilterLeavers(targets)

    if prepareErr == nil {
        if _, err := viewsManager.clusterCommitView(ctx, cacheName, pendingView.ID(), targets, true); err != nil {
            return err
        }

        finished = true
        telemetry.Installations.WithLabelValues(cacheName, "committed").Inc()
        viewsManager.triggerViewInstallation()

        return nil
    }

    Log.Warningf("Rolling back view %v of cache %s: %v", pendingView, cacheName, prepareErr)

    rollbackViewID := pendingChanges.RollbackViewID()

    if err := viewsManager.clusterRollbackView(ctx, cacheName, rollbackViewID, committedView.ID(), targets, true); err != nil {
        return err
    }

    finished = true
    telemetry.Installations.WithLabelValues(cacheName, "rolledback").Inc()
    viewsManager.triggerViewInstallation()

    return prepareErr
}

// clusterPrepareView prepares the view locally and then on every target. Any
// error means the view was vetoed by at least one node.
func (viewsManager *ViewsManager) clusterPrepareView(ctx context.Context, cacheName string, pendingView View, committedView View, targets []Address) error {
    if err := viewsManager.handlePrepareView(cacheName, pendingView, committedView); err != nil {
        return err
    }

    failed, err := viewsManager.broadcast(ctx, phasePrepare, targets, ViewPrepareBody{
        CacheName:     cacheName,
        PendingView:   pendingView,
        CommittedView: committedView,
    })

    if err != nil {
        return err
    }

    if len(failed) != 0 {
        Log.Warningf("Nodes %v did not prepare view %v of cache %s", failed, pendingView, cacheName)

        return EPrepareFailed
    }

    return nil
}

// clusterCommitView commits viewID on the targets and then on this node if
// includeSelf is set. Remote failures do not fail the commit and are returned
// to the caller.
func (viewsManager *ViewsManager) clusterCommitView(ctx context.Context, cacheName string, viewID int, targets []Address, includeSelf bool) ([]Address, error) {
    failed, err := viewsManager.broadcastWithRetry(ctx, phaseCommit, targets, ViewCommitBody{CacheName: cacheName, ViewID: viewID})

    if err != nil {
        return nil, err
    }

    if !includeSelf {
        return failed, nil
    }

    return failed, viewsManager.handleCommitView(cacheName, viewID)
}

func (viewsManager *ViewsManager) clusterRollbackView(ctx context.Context, cacheName string, newViewID int, committedViewID int, targets []Address, includeSelf bool) error {
    if _, err := viewsManager.broadcastWithRetry(ctx, phaseRollback, targets, ViewRollbackBody{CacheName: cacheName, NewViewID: newViewID, CommittedViewID: committedViewID}); err != nil {
        return err
    }

    if !includeSelf {
        return nil
    }

    return viewsManager.handleRollbackView(cacheName, newViewID, committedViewID)
}

// broadcast sends body to every target and returns the targets that did not
// acknowledge it
func (viewsManager *ViewsManager) broadcast(ctx context.Context, phase string, targets []Address, body interface{}) ([]Address, error) {
    if len(targets) == 0 {
        return []Address{}, nil
    }

    command, err := viewsManager.newCommand(body)

    if err != nil {
        return nil, err
    }

    responses, err := viewsManager.transport.InvokeRemotely(ctx, targets, command, SynchronousResponses, viewsManager.timeout)

    if err != nil {
        return nil, err
    }

    failed := make([]Address, 0)

    for _, target := range targets {
        response, ok := responses[target]

        if !ok {
            Log.Debugf("%s request %s to %s timed out or could not be delivered", phase, command.RequestID, target)

            failed = append(failed, target)

            continue
        }

        if !response.Success {
            Log.Debugf("%s request %s to %s failed: %s", phase, command.RequestID, target, response.Error)

            failed = append(failed, target)
        }
    }

    if len(failed) != 0 {
        telemetry.BroadcastFailures.WithLabelValues(phase).Add(float64(len(failed)))
    }

    return failed, nil
}

// broadcastWithRetry sends body once more to the targets that failed the
// first attempt. Commit and rollback are idempotent on the receiving side so a
// duplicate delivery is harmless.
func (viewsManager *ViewsManager) broadcastWithRetry(ctx context.Context, phase string, targets []Address, body interface{}) ([]Address, error) {
    failed, err := viewsManager.broadcast(ctx, phase, targets, body)

    if err != nil {
        return nil, err
    }

    if len(failed) == 0 {
        return failed, nil
    }

    Log.Warningf("Retrying %s for nodes %v", phase, failed)

    failed, err = viewsManager.broadcast(ctx, phase, failed, body)

    if err != nil {
        return nil, err
    }

    if len(failed) != 0 {
        Log.Errorf("Nodes %v did not acknowledge %s. They will be reconciled by the next recovery", failed, phase)
    }

    return failed, nil
}
