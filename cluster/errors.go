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
    "errors"
)

var ENoSuchCache = errors.New("The cache is not known by this node")
var ENotMember = errors.New("This node is neither a member of the proposed view nor the coordinator")
var ENoListener = errors.New("The cache has no registered view listener")
var EStaleView = errors.New("The proposed view is not newer than the committed view")
var EIllegalViewCommit = errors.New("The view being committed does not match the pending view")
var ENoSuchCommand = errors.New("The view command type is not supported")
var ECouldNotParseCommand = errors.New("The view command data was not properly formatted. Unable to parse it.")
var ENoSuchDeltaType = errors.New("The view delta type is not supported")
