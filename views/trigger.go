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

// run is the reconciliation loop. It wakes up on join and leave requests,
// membership changes and every cooldown period. Rounds that start view
// installations are followed by at least one cooldown period before the next
// round.
func (viewsManager *ViewsManager) run(stop chan struct{}, stopped chan struct{}) {
    defer close(stopped)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    ticker := time.NewTicker(viewsManager.cooldown)
    defer ticker.Stop()

    for {
        select {
        case <-stop:
            return
        case <-viewsManager.wakeup:
        case <-ticker.C:
        }

        if !viewsManager.reconcile(ctx) {
            continue
        }

        select {
        case <-stop:
            return
        case <-time.After(viewsManager.cooldown):
        }
    }
}

// reconcile runs one round of the loop and reports whether any view
// installation was started
func (viewsManager *ViewsManager) reconcile(ctx context.Context) bool {
    for {
        shouldRecover, generation := viewsManager.recoveryRequested()

        if !shouldRecover {
            break
        }

        if err := viewsManager.waitForInstallations(ctx); err != nil {
            return false
        }

        if err := viewsManager.recoverViews(ctx); err != nil {
            Log.Errorf("Recovery on %s failed. It will be retried: %v", viewsManager.self, err)

            return false
        }

        viewsManager.recoveryDone(generation)
    }

    if !viewsManager.IsCoordinator() {
        return false
    }

    live := NewAddressSet(viewsManager.Members()...)
    started := false

    for _, cacheName := range viewsManager.Caches() {
        viewState := viewsManager.viewState(cacheName)
        pendingChanges := viewState.PendingChanges()
        committedView := viewState.CommittedView()
        departed := make([]Address, 0)

        for _, member := range append(committedView.Members(), pendingChanges.Joiners()...) {
            if !live.Contains(member) {
                departed = append(departed, member)
            }
        }

        if len(departed) != 0 {
            Log.Infof("Cache %s: nodes %v are no longer part of the cluster", cacheName, departed)

            pendingChanges.RequestLeave(departed...)
        }

        pendingView := pendingChanges.CreatePendingView(committedView)

        if pendingView == nil {
            continue
        }

        Log.Infof("Cache %s: proposing view %v", cacheName, *pendingView)

        telemetry.Proposals.WithLabelValues(cacheName).Inc()

        if err := viewsManager.installSlots.Acquire(ctx, 1); err != nil {
            pendingChanges.CancelInstallation(pendingView.ID())

            return started
        }

        viewsManager.installs.Add(1)
        started = true

        go func(viewState *ViewState, pendingView View) {
            defer viewsManager.installs.Done()
            defer viewsManager.installSlots.Release(1)

            if err := viewsManager.clusterInstallView(ctx, viewState, pendingView); err != nil {
                Log.Warningf("Cache %s: view %v was not installed: %v", viewState.CacheName(), pendingView, err)
            }
        }(viewState, *pendingView)
    }

    return started
}

func (viewsManager *ViewsManager) waitForInstallations(ctx context.Context) error {
    drained := make(chan struct{})

    go func() {
        viewsManager.installs.Wait()
        close(drained)
    }()

    select {
    case <-drained:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}
