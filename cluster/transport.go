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
    "context"
    "time"
)

type ResponseMode int

const (
    // Wait for every target to reply or for the timeout to expire
    SynchronousResponses ResponseMode = iota
    // Send and return immediately. The returned map is empty.
    AsynchronousNoResponses ResponseMode = iota
)

// Transport delivers view commands between nodes and reports the current
// membership of the cluster. The first member is the coordinator.
type Transport interface {
    // InvokeRemotely sends command to every target and returns the responses
    // that arrived before the timeout. Targets that could not be reached or
    // did not reply in time have no entry in the result.
    InvokeRemotely(ctx context.Context, targets []Address, command ViewCommand, mode ResponseMode, timeout time.Duration) (map[Address]ViewCommandResponse, error)
    Members() []Address
    Coordinator() Address
    IsCoordinator() bool
    Address() Address
}

// CommandHandler processes view commands delivered by a Transport
type CommandHandler interface {
    HandleViewCommand(ctx context.Context, command ViewCommand) ViewCommandResponse
}
