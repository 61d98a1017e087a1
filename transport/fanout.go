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
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
)

type invokeResult struct {
    target   Address
    response ViewCommandResponse
    err      error
}

// fanOut calls send for every target concurrently. In synchronous mode it
// waits until every call has returned or the timeout expires and returns the
// responses that arrived in time. Calls still running after the deadline are
// left to finish on their own and their results are dropped.
func fanOut(ctx context.Context, targets []Address, mode ResponseMode, timeout time.Duration, send func(context.Context, Address) (ViewCommandResponse, error)) (map[Address]ViewCommandResponse, error) {
    responses := make(map[Address]ViewCommandResponse, len(targets))

    if len(targets) == 0 {
        return responses, nil
    }

    if mode == AsynchronousNoResponses {
        for _, target := range targets {
            go func(target Address) {
                sendCtx, cancel := context.WithTimeout(context.Background(), timeout)
                defer cancel()

                send(sendCtx, target)
            }(target)
        }

        return responses, nil
    }

    ctxDeadline, cancel := context.WithTimeout(ctx, timeout)
    results := make(chan invokeResult, len(targets))

    for _, target := range targets {
        go func(target Address) {
            response, err := send(ctxDeadline, target)

            results <- invokeResult{target: target, response: response, err: err}
        }(target)
    }

    defer cancel()

    for nReceived := 0; nReceived < len(targets); nReceived++ {
        select {
        case result := <-results:
            if result.err == nil {
                responses[result.target] = result.response
            }
        case <-ctxDeadline.Done():
            if ctx.Err() != nil {
                return responses, ctx.Err()
            }

            return responses, nil
        }
    }

    return responses, nil
}
