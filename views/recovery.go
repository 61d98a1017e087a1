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
    "sort"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/telemetry"
)

// RecoveredPartition is a set of nodes whose last committed views of a cache
// agree on membership
type RecoveredPartition struct {
    Members   []Address
    MinViewID int
    MaxViewID int
}

// PartitionRecoveredViews groups the last committed views that nodes reported
// for one cache. Nodes whose reported view does not contain themselves are
// still joining and are returned separately. Partitions are ordered by
// decreasing view id.
func PartitionRecoveredViews(reports map[Address]View) ([]RecoveredPartition, []Address) {
    joiners := make([]Address, 0)
    members := make([]Address, 0, len(reports))

    for address, view := range reports {
        if view.Contains(address) {
            members = append(members, address)
        } else {
            joiners = append(joiners, address)
        }
    }

    sort.Slice(joiners, func(i, j int) bool {
        return joiners[i] < joiners[j]
    })

    sort.Slice(members, func(i, j int) bool {
        if reports[members[i]].ID() != reports[members[j]].ID() {
            return reports[members[i]].ID() > reports[members[j]].ID()
        }

        return members[i] < members[j]
    })

    remaining := NewAddressSet(members...)
    partitions := make([]RecoveredPartition, 0)

    for _, head := range members {
        if !remaining.Contains(head) {
            continue
        }

        headView := reports[head]
        partition := RecoveredPartition{
            Members:   make([]Address, 0, headView.Size()),
            MinViewID: headView.ID(),
            MaxViewID: headView.ID(),
        }

        for _, member := range headView.Members() {
            if !remaining.Contains(member) {
                continue
            }

            partition.Members = append(partition.Members, member)

            if reports[member].ID() < partition.MinViewID {
                partition.MinViewID = reports[member].ID()
            }
        }

        remaining.Remove(partition.Members...)
        partitions = append(partitions, partition)
    }

    return partitions, joiners
}

// recoverViews asks every live node for the views it last committed and
// resolves each cache so that all nodes in a partition agree again
func (viewsManager *ViewsManager) recoverViews(ctx context.Context) error {
    telemetry.Recoveries.Inc()

    command, err := viewsManager.newCommand(ViewRecoverBody{})

    if err != nil {
        return err
    }

    members := viewsManager.Members()
    targets := viewsManager.others(members)

    Log.Infof("Coordinator %s recovering views from %v", viewsManager.self, members)

    responses, err := viewsManager.transport.InvokeRemotely(ctx, targets, command, SynchronousResponses, viewsManager.timeout)

    if err != nil {
        return err
    }

    reports := make(map[string]map[Address]View)
    addReports := func(node Address, views map[string]View) {
        for cacheName, view := range views {
            if _, ok := reports[cacheName]; !ok {
                reports[cacheName] = make(map[Address]View)
            }

            reports[cacheName][node] = view
        }
    }

    addReports(viewsManager.self, viewsManager.handleRecoverViews())

    for _, target := range targets {
        response, ok := responses[target]

        if !ok || !response.Success {
            Log.Warningf("Node %s did not report its views during recovery", target)

            continue
        }

        addReports(target, response.Views)
    }

    cacheNames := make([]string, 0, len(reports))

    for cacheName := range reports {
        cacheNames = append(cacheNames, cacheName)
    }

    sort.Strings(cacheNames)

    for _, cacheName := range cacheNames {
        if err := viewsManager.recoverCache(ctx, cacheName, reports[cacheName], members); err != nil {
            if ctx.Err() != nil {
                return ctx.Err()
            }

            Log.Errorf("Unable to recover views of cache %s: %v", cacheName, err)
        }
    }

    return nil
}

func (viewsManager *ViewsManager) recoverCache(ctx context.Context, cacheName string, reports map[Address]View, liveMembers []Address) error {
    viewState := viewsManager.viewState(cacheName)
    pendingChanges := viewState.PendingChanges()
    partitions, joiners := PartitionRecoveredViews(reports)

    if len(partitions) > 0 {
        // the first partition holds the highest id anyone has committed
        pendingChanges.ObserveViewID(partitions[0].MaxViewID)
    }

    recoveredMembers := NewAddressSet()
    diverged := false

    for _, partition := range partitions {
        recoveredMembers.Add(partition.Members...)
        includeSelf := NewAddressSet(partition.Members...).Contains(viewsManager.self)
        targets := viewsManager.others(partition.Members)

        if partition.MinViewID != partition.MaxViewID {
            Log.Infof("Cache %s: committing view %d to partition %v", cacheName, partition.MaxViewID, partition.Members)

            failed, err := viewsManager.clusterCommitView(ctx, cacheName, partition.MaxViewID, targets, includeSelf)

            if ctx.Err() != nil {
                return ctx.Err()
            }

            if err != nil || len(failed) != 0 {
                // some member already moved past MaxViewID to a view it cannot
                // commit. Only a fresh view brings the partition back together.
                Log.Warningf("Cache %s: view %d was not committed on all of %v (failed: %v, local: %v)", cacheName, partition.MaxViewID, partition.Members, failed, err)

                diverged = true
            }

            continue
        }

        rollbackViewID := pendingChanges.RollbackViewID()

        Log.Infof("Cache %s: rolling back partition %v to view %d as view %d", cacheName, partition.Members, partition.MaxViewID, rollbackViewID)

        if err := viewsManager.clusterRollbackView(ctx, cacheName, rollbackViewID, partition.MaxViewID, targets, includeSelf); err != nil {
            return err
        }
    }

    // order the recovered members the way the transport orders the cluster
    ordered := NewAddressSet()

    for _, member := range liveMembers {
        if recoveredMembers.Contains(member) {
            ordered.Add(member)
        }
    }

    ordered.Add(recoveredMembers.Addresses()...)

    pendingChanges.ForgetLeavers(ordered.Addresses()...)

    if len(partitions) > 1 || diverged || !SameMembers(viewState.CommittedView().Members(), ordered.Addresses()) {
        Log.Infof("Cache %s: next view will start from recovered members %v", cacheName, ordered.Addresses())

        pendingChanges.SetMembersAfterCoordinatorChange(ordered.Addresses())
    }

    for _, joiner := range joiners {
        pendingChanges.RequestJoin(joiner)
    }

    return nil
}
