package server

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

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

// loggingListener stands in for a state transfer engine. It accepts every view
// and remembers the last one installed.
type loggingListener struct {
    cacheName     string
    pendingView   View
    installedView View
    lock          sync.Mutex
}

func newLoggingListener(cacheName string) ViewListener {
    return &loggingListener{cacheName: cacheName}
}

func (listener *loggingListener) PreInstallView() {
}

func (listener *loggingListener) PrepareView(pendingView View, committedView View) error {
    listener.lock.Lock()
    defer listener.lock.Unlock()

    Log.Debugf("Cache %s: preparing view %v on top of %v", listener.cacheName, pendingView, committedView)

    listener.pendingView = pendingView

    return nil
}

func (listener *loggingListener) CommitView(viewID int) {
    listener.lock.Lock()
    defer listener.lock.Unlock()

    if listener.pendingView.ID() == viewID {
        listener.installedView = listener.pendingView
    }

    listener.pendingView = EmptyView
}

func (listener *loggingListener) RollbackView(committedViewID int) {
    listener.lock.Lock()
    defer listener.lock.Unlock()

    Log.Debugf("Cache %s: discarding view %v. Still on view %d", listener.cacheName, listener.pendingView, committedViewID)

    listener.pendingView = EmptyView
}

func (listener *loggingListener) PostInstallView(viewID int) {
    listener.lock.Lock()
    defer listener.lock.Unlock()

    Log.Infof("Cache %s: view %d installed. Members are %v", listener.cacheName, viewID, listener.installedView.Members())
}
