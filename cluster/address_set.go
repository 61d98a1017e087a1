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

// AddressSet is an insertion ordered set of addresses. It is not safe for
// concurrent use.
type AddressSet struct {
    order []Address
    index map[Address]bool
}

func NewAddressSet(addresses ...Address) *AddressSet {
    set := &AddressSet{
        order: make([]Address, 0, len(addresses)),
        index: make(map[Address]bool, len(addresses)),
    }

    set.Add(addresses...)

    return set
}

func (set *AddressSet) Add(addresses ...Address) {
    for _, address := range addresses {
        if set.index[address] {
            continue
        }

        set.index[address] = true
        set.order = append(set.order, address)
    }
}

func (set *AddressSet) Remove(addresses ...Address) {
    removed := false

    for _, address := range addresses {
        if set.index[address] {
            delete(set.index, address)
            removed = true
        }
    }

    if !removed {
        return
    }

    order := set.order[:0]

    for _, address := range set.order {
        if set.index[address] {
            order = append(order, address)
        }
    }

    set.order = order
}

// Retain removes every address not contained in keep
func (set *AddressSet) Retain(keep []Address) {
    keepSet := NewAddressSet(keep...)
    remove := make([]Address, 0)

    for _, address := range set.order {
        if !keepSet.Contains(address) {
            remove = append(remove, address)
        }
    }

    set.Remove(remove...)
}

func (set *AddressSet) Contains(address Address) bool {
    return set.index[address]
}

func (set *AddressSet) Len() int {
    return len(set.order)
}

func (set *AddressSet) Addresses() []Address {
    addresses := make([]Address, len(set.order))
    copy(addresses, set.order)

    return addresses
}
