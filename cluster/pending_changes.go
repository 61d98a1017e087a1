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
)

// PendingChanges accumulates the join and leave requests for one cache that
// arrived since the last committed view. Only the coordinator proposes views
// from it, but every node records leavers so that broadcasts can skip nodes
// that are known to be gone.
type PendingChanges struct {
    cacheName string
    // highest view id generated or observed for this cache
    lastViewID int
    joiners    *AddressSet
    leavers    *AddressSet
    // membership snapshot taken after a coordinator change or a merge. nil when unset
    membersAfterCoordChange    []Address
    viewInstallationInProgress bool
    // id of the proposal guarded by viewInstallationInProgress
    proposedViewID int
    lock           sync.Mutex
}

func NewPendingChanges(cacheName string) *PendingChanges {
    return &PendingChanges{
        cacheName: cacheName,
        joiners:   NewAddressSet(),
        leavers:   NewAddressSet(),
    }
}

// RequestJoin records a node that wants to be part of the next view. A join
// supersedes an earlier pending leave from the same node.
func (pendingChanges *PendingChanges) RequestJoin(joiner Address) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    pendingChanges.leavers.Remove(joiner)
    pendingChanges.joiners.Add(joiner)
}

// RequestLeave records nodes that are leaving. A node that is still a pending
// joiner stays in the joiner set and is excluded from the next proposal.
func (pendingChanges *PendingChanges) RequestLeave(leavers ...Address) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    pendingChanges.leavers.Add(leavers...)
}

// ForgetLeavers drops pending leave requests from nodes that turned out to be
// alive and running the cache
func (pendingChanges *PendingChanges) ForgetLeavers(addresses ...Address) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    pendingChanges.leavers.Remove(addresses...)
}

// SetMembersAfterCoordinatorChange records the recovered membership that the
// next proposal starts from instead of the committed view's members
func (pendingChanges *PendingChanges) SetMembersAfterCoordinatorChange(members []Address) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    pendingChanges.membersAfterCoordChange = NewAddressSet(members...).Addresses()
}

// CreatePendingView returns the next view to propose or nil if there is nothing
// to propose or a proposal for this cache is already being installed.
func (pendingChanges *PendingChanges) CreatePendingView(committedView View) *View {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    if pendingChanges.viewInstallationInProgress {
        return nil
    }

    if pendingChanges.joiners.Len() == 0 && pendingChanges.leavers.Len() == 0 && pendingChanges.membersAfterCoordChange == nil {
        return nil
    }

    var members *AddressSet

    if pendingChanges.membersAfterCoordChange != nil {
        members = NewAddressSet(pendingChanges.membersAfterCoordChange...)
    } else {
        members = NewAddressSet(committedView.members...)
    }

    members.Add(pendingChanges.joiners.Addresses()...)
    members.Remove(pendingChanges.leavers.Addresses()...)

    if pendingChanges.joiners.Len() == 0 && pendingChanges.membersAfterCoordChange == nil && SameMembers(members.Addresses(), committedView.members) {
        // only leavers that are not part of the committed view
        return nil
    }

    if committedView.viewID > pendingChanges.lastViewID {
        pendingChanges.lastViewID = committedView.viewID
    }

    pendingChanges.lastViewID++
    pendingChanges.viewInstallationInProgress = true
    pendingChanges.proposedViewID = pendingChanges.lastViewID

    pendingView := NewView(pendingChanges.lastViewID, members.Addresses())

    return &pendingView
}

// RollbackViewID reserves a fresh id for a rollback. The id of the rejected
// proposal is never reused.
func (pendingChanges *PendingChanges) RollbackViewID() int {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    pendingChanges.lastViewID++

    return pendingChanges.lastViewID
}

// ObserveViewID advances lastViewID to at least viewID
func (pendingChanges *PendingChanges) ObserveViewID(viewID int) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    if viewID > pendingChanges.lastViewID {
        pendingChanges.lastViewID = viewID
    }
}

// ResetChanges prunes the accumulated changes against a newly committed view
// and allows the next proposal
func (pendingChanges *PendingChanges) ResetChanges(committedView View) {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    // a joiner that also left was added then removed
    pendingChanges.joiners.Remove(pendingChanges.leavers.Addresses()...)
    pendingChanges.joiners.Remove(committedView.members...)
    pendingChanges.leavers.Retain(committedView.members)
    pendingChanges.membersAfterCoordChange = nil
    pendingChanges.viewInstallationInProgress = false

    if committedView.viewID > pendingChanges.lastViewID {
        pendingChanges.lastViewID = committedView.viewID
    }
}

// CancelInstallation clears the in-progress guard for an installation that was
// abandoned before it could commit or roll back. It does nothing if the guard
// belongs to a different proposal.
func (pendingChanges *PendingChanges) CancelInstallation(viewID int) bool {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    if !pendingChanges.viewInstallationInProgress || pendingChanges.proposedViewID != viewID {
        return false
    }

    pendingChanges.viewInstallationInProgress = false

    return true
}

// FilterLeavers returns targets without any address recorded as a leaver
func (pendingChanges *PendingChanges) FilterLeavers(targets []Address) []Address {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    filtered := make([]Address, 0, len(targets))

    for _, target := range targets {
        if !pendingChanges.leavers.Contains(target) {
            filtered = append(filtered, target)
        }
    }

    return filtered
}

func (pendingChanges *PendingChanges) Joiners() []Address {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    return pendingChanges.joiners.Addresses()
}

func (pendingChanges *PendingChanges) Leavers() []Address {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    return pendingChanges.leavers.Addresses()
}

func (pendingChanges *PendingChanges) MembersAfterCoordinatorChange() []Address {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    if pendingChanges.membersAfterCoordChange == nil {
        return nil
    }

    return NewAddressSet(pendingChanges.membersAfterCoordChange...).Addresses()
}

func (pendingChanges *PendingChanges) LastViewID() int {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    return pendingChanges.lastViewID
}

func (pendingChanges *PendingChanges) InstallationInProgress() bool {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    return pendingChanges.viewInstallationInProgress
}

func (pendingChanges *PendingChanges) HasChanges() bool {
    pendingChanges.lock.Lock()
    defer pendingChanges.lock.Unlock()

    return pendingChanges.joiners.Len() != 0 || pendingChanges.leavers.Len() != 0 || pendingChanges.membersAfterCoordChange != nil
}
