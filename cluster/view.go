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
    "encoding/json"
    "fmt"
)

// Address identifies a node in the cluster
type Address string

// View is an immutable membership snapshot for one cache. Views are never
// modified after construction, only replaced by views with a higher id.
type View struct {
    viewID  int
    members []Address
}

// EmptyView is the view of a cache that has never had a committed view
var EmptyView = View{viewID: -1, members: []Address{}}

// NewView copies members, dropping any duplicates while preserving order
func NewView(viewID int, members []Address) View {
    return View{
        viewID:  viewID,
        members: NewAddressSet(members...).Addresses(),
    }
}

func (view View) ID() int {
    return view.viewID
}

func (view View) Members() []Address {
    members := make([]Address, len(view.members))
    copy(members, view.members)

    return members
}

func (view View) Size() int {
    return len(view.members)
}

func (view View) IsEmpty() bool {
    return len(view.members) == 0
}

func (view View) Contains(address Address) bool {
    for _, member := range view.members {
        if member == address {
            return true
        }
    }

    return false
}

func (view View) Equal(otherView View) bool {
    return view.viewID == otherView.viewID && SameMembers(view.members, otherView.members)
}

func (view View) String() string {
    return fmt.Sprintf("CacheView{viewId=%d, members=%v}", view.viewID, view.members)
}

type viewJSON struct {
    ViewID  int       `json:"viewId"`
    Members []Address `json:"members"`
}

func (view View) MarshalJSON() ([]byte, error) {
    members := view.members

    if members == nil {
        members = []Address{}
    }

    return json.Marshal(viewJSON{ViewID: view.viewID, Members: members})
}

func (view *View) UnmarshalJSON(data []byte) error {
    var encoded viewJSON

    if err := json.Unmarshal(data, &encoded); err != nil {
        return err
    }

    *view = NewView(encoded.ViewID, encoded.Members)

    return nil
}

// SameMembers reports whether a and b hold the same addresses regardless of order
func SameMembers(a []Address, b []Address) bool {
    if len(a) != len(b) {
        return false
    }

    set := NewAddressSet(a...)

    for _, address := range b {
        if !set.Contains(address) {
            return false
        }
    }

    return true
}
