package transport

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
    "sync"
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

// MembershipListener is told about every change to a node's view of the
// cluster membership. merge is true when the change reunites nodes that were
// separated by a network split.
type MembershipListener func(members []Address, merge bool)

// Interceptor may fail a delivery from one node to another. It is used to
// simulate vetoes and lost messages.
type Interceptor func(from Address, to Address, command ViewCommand) error

// LocalNetwork connects LocalTransports inside one process. Nodes can be
// split into groups that cannot reach each other and healed again, which
// produces the same membership notifications a real transport would.
type LocalNetwork struct {
    nodes       map[Address]*LocalTransport
    order       []Address
    groups      map[Address]int
    interceptor Interceptor
    lock        sync.Mutex
}

func NewLocalNetwork() *LocalNetwork {
    return &LocalNetwork{
        nodes:  make(map[Address]*LocalTransport),
        order:  make([]Address, 0),
        groups: make(map[Address]int),
    }
}

// NewTransport attaches a node to the network. Nodes that are added earlier
// take precedence as coordinator.
func (network *LocalNetwork) NewTransport(address Address) *LocalTransport {
    transport := &LocalTransport{
        network: network,
        address: address,
        members: []Address{address},
    }

    network.lock.Lock()
    network.nodes[address] = transport
    network.order = append(network.order, address)
    network.groups[address] = 0
    network.lock.Unlock()

    network.recomputeMembership(false)

    return transport
}

// Remove simulates a crash of the node at address
func (network *LocalNetwork) Remove(address Address) {
    network.lock.Lock()
    delete(network.nodes, address)
    delete(network.groups, address)

    order := make([]Address, 0, len(network.order))

    for _, a := range network.order {
        if a != address {
            order = append(order, a)
        }
    }

    network.order = order
    network.lock.Unlock()

    network.recomputeMembership(false)
}

// Split partitions the network. Nodes not mentioned in any group stay in a
// group of their own.
func (network *LocalNetwork) Split(groups ...[]Address) {
    network.lock.Lock()

    for i, address := range network.order {
        network.groups[address] = len(groups) + 1 + i
    }

    for i, group := range groups {
        for _, address := range group {
            if _, ok := network.groups[address]; ok {
                network.groups[address] = i + 1
            }
        }
    }

    network.lock.Unlock()

    network.recomputeMembership(false)
}

// Heal reconnects every node
func (network *LocalNetwork) Heal() {
    network.lock.Lock()

    for address := range network.groups {
        network.groups[address] = 0
    }

    network.lock.Unlock()

    network.recomputeMembership(true)
}

func (network *LocalNetwork) Intercept(interceptor Interceptor) {
    network.lock.Lock()
    defer network.lock.Unlock()

    network.interceptor = interceptor
}

func (network *LocalNetwork) reachableFrom(address Address) []Address {
    group, ok := network.groups[address]

    if !ok {
        return []Address{}
    }

    reachable := make([]Address, 0, len(network.order))

    for _, a := range network.order {
        if network.groups[a] == group {
            reachable = append(reachable, a)
        }
    }

    return reachable
}

func (network *LocalNetwork) recomputeMembership(healing bool) {
    type notification struct {
        listener MembershipListener
        members  []Address
        merge    bool
    }

    notifications := make([]notification, 0)

    network.lock.Lock()

    for _, address := range network.order {
        transport := network.nodes[address]
        members := network.reachableFrom(address)

        transport.lock.Lock()
        previous := transport.members

        if sameOrder(previous, members) {
            transport.lock.Unlock()

            continue
        }

        transport.members = members
        listener := transport.membershipListener
        transport.lock.Unlock()

        if listener != nil {
            notifications = append(notifications, notification{
                listener: listener,
                members:  members,
                merge:    healing && gainedMembers(previous, members),
            })
        }
    }

    network.lock.Unlock()

    for _, n := range notifications {
        n.listener(n.members, n.merge)
    }
}

func (network *LocalNetwork) deliver(ctx context.Context, from Address, to Address, command ViewCommand) (ViewCommandResponse, error) {
    network.lock.Lock()
    receiver, ok := network.nodes[to]
    fromGroup, fromOK := network.groups[from]
    toGroup := network.groups[to]
    interceptor := network.interceptor
    network.lock.Unlock()

    if !ok || !fromOK || fromGroup != toGroup {
        return ViewCommandResponse{}, EUnreachable
    }

    if interceptor != nil {
        if err := interceptor(from, to, command); err != nil {
            return ViewCommandResponse{}, err
        }
    }

    receiver.lock.Lock()
    handler := receiver.handler
    receiver.lock.Unlock()

    if handler == nil {
        return ViewCommandResponse{}, EReceiverUnknown
    }

    return handler.HandleViewCommand(ctx, command), nil
}

// LocalTransport is one node's endpoint on a LocalNetwork
type LocalTransport struct {
    network            *LocalNetwork
    address            Address
    members            []Address
    handler            CommandHandler
    membershipListener MembershipListener
    lock               sync.Mutex
}

func (transport *LocalTransport) SetHandler(handler CommandHandler) {
    transport.lock.Lock()
    defer transport.lock.Unlock()

    transport.handler = handler
}

func (transport *LocalTransport) OnMembershipChange(listener MembershipListener) {
    transport.lock.Lock()
    defer transport.lock.Unlock()

    transport.membershipListener = listener
}

func (transport *LocalTransport) InvokeRemotely(ctx context.Context, targets []Address, command ViewCommand, mode ResponseMode, timeout time.Duration) (map[Address]ViewCommandResponse, error) {
    return fanOut(ctx, targets, mode, timeout, func(ctx context.Context, target Address) (ViewCommandResponse, error) {
        response, err := transport.network.deliver(ctx, transport.address, target, command)

        if err != nil {
            Log.Debugf("Unable to deliver %v from %s to %s: %v", command.Type, transport.address, target, err)
        }

        return response, err
    })
}

func (transport *LocalTransport) Members() []Address {
    transport.lock.Lock()
    defer transport.lock.Unlock()

    members := make([]Address, len(transport.members))
    copy(members, transport.members)

    return members
}

func (transport *LocalTransport) Coordinator() Address {
    transport.lock.Lock()
    defer transport.lock.Unlock()

    if len(transport.members) == 0 {
        return ""
    }

    return transport.members[0]
}

func (transport *LocalTransport) IsCoordinator() bool {
    return transport.Coordinator() == transport.address
}

func (transport *LocalTransport) Address() Address {
    return transport.address
}

func sameOrder(a []Address, b []Address) bool {
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

func gainedMembers(previous []Address, current []Address) bool {
    previousSet := NewAddressSet(previous...)

    for _, address := range current {
        if !previousSet.Contains(address) {
            return true
        }
    }

    return false
}
