package membership

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
    "github.com/PelionIoT/cacheviews/transport"
)

const HealthEndpoint = "/healthz"

// ChangeListener is told about every membership change. merge is true when
// the change brings back a node that had been lost, which means partitions
// that could not see each other have come together again.
type ChangeListener func(members []transport.PeerAddress, merge bool)

// Provider is the source of cluster membership. Every node must order the
// members the same way since the first member is the coordinator.
type Provider interface {
    Start() error
    Stop()
    Members() []transport.PeerAddress
    OnChange(listener ChangeListener)
}

// memberTracker holds the last membership a provider computed and notifies
// listeners when it changes
type memberTracker struct {
    members   []transport.PeerAddress
    listeners []ChangeListener
    lock      sync.Mutex
}

func newMemberTracker(initial []transport.PeerAddress) *memberTracker {
    return &memberTracker{
        members: initial,
    }
}

func (tracker *memberTracker) Members() []transport.PeerAddress {
    tracker.lock.Lock()
    defer tracker.lock.Unlock()

    return append([]transport.PeerAddress{}, tracker.members...)
}

func (tracker *memberTracker) OnChange(listener ChangeListener) {
    tracker.lock.Lock()
    defer tracker.lock.Unlock()

    tracker.listeners = append(tracker.listeners, listener)
}

// Update replaces the membership and notifies listeners if it changed. Any
// node that joins the membership is reported as a merge.
func (tracker *memberTracker) Update(members []transport.PeerAddress) {
    tracker.lock.Lock()

    if samePeers(tracker.members, members) {
        tracker.lock.Unlock()

        return
    }

    previous := make(map[Address]bool, len(tracker.members))
    merge := false

    for _, member := range tracker.members {
        previous[member.NodeID] = true
    }

    // a node that was not visible before may have formed views of its own
    for _, member := range members {
        if !previous[member.NodeID] {
            merge = true
        }
    }

    tracker.members = members
    listeners := append([]ChangeListener{}, tracker.listeners...)
    tracker.lock.Unlock()

    for _, listener := range listeners {
        listener(append([]transport.PeerAddress{}, members...), merge)
    }
}

// NodeIDs extracts the addresses of peers in order
func NodeIDs(peers []transport.PeerAddress) []Address {
    addresses := make([]Address, len(peers))

    for i, peer := range peers {
        addresses[i] = peer.NodeID
    }

    return addresses
}

func samePeers(a []transport.PeerAddress, b []transport.PeerAddress) bool {
    if len(a) != len(b) {
        return false
    }

    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }

    return true
}
