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

type ViewDeltaType int

const (
    DeltaViewPrepared   ViewDeltaType = iota
    DeltaViewCommitted  ViewDeltaType = iota
    DeltaViewRolledBack ViewDeltaType = iota
)

func (deltaType ViewDeltaType) String() string {
    switch deltaType {
    case DeltaViewPrepared:
        return "prepared"
    case DeltaViewCommitted:
        return "committed"
    case DeltaViewRolledBack:
        return "rolledback"
    default:
        return "unknown"
    }
}

func (deltaType ViewDeltaType) MarshalText() ([]byte, error) {
    return []byte(deltaType.String()), nil
}

// ViewDelta describes a change to a cache's views on the local node. View is
// the prepared view for DeltaViewPrepared and the new committed view otherwise.
type ViewDelta struct {
    Type      ViewDeltaType `json:"type"`
    CacheName string        `json:"cacheName"`
    View      View          `json:"view"`
}

func (deltaType *ViewDeltaType) UnmarshalText(text []byte) error {
    switch string(text) {
    case "prepared":
        *deltaType = DeltaViewPrepared
    case "committed":
        *deltaType = DeltaViewCommitted
    case "rolledback":
        *deltaType = DeltaViewRolledBack
    default:
        return ENoSuchDeltaType
    }

    return nil
}
