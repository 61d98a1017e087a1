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
)

type ViewCommandType int

const (
    ViewRequestJoin  ViewCommandType = iota
    ViewRequestLeave ViewCommandType = iota
    ViewPrepare      ViewCommandType = iota
    ViewCommit       ViewCommandType = iota
    ViewRollback     ViewCommandType = iota
    ViewRecover      ViewCommandType = iota
)

func (commandType ViewCommandType) String() string {
    switch commandType {
    case ViewRequestJoin:
        return "RequestJoin"
    case ViewRequestLeave:
        return "RequestLeave"
    case ViewPrepare:
        return "PrepareView"
    case ViewCommit:
        return "CommitView"
    case ViewRollback:
        return "RollbackView"
    case ViewRecover:
        return "RecoverViews"
    default:
        return "Unknown"
    }
}

type ViewCommand struct {
    Type      ViewCommandType `json:"type"`
    Sender    Address         `json:"sender"`
    RequestID string          `json:"requestId,omitempty"`
    Data      []byte          `json:"data"`
}

type ViewRequestJoinBody struct {
    CacheName string `json:"cacheName"`
}

type ViewRequestLeaveBody struct {
    CacheName string `json:"cacheName"`
}

type ViewPrepareBody struct {
    CacheName     string `json:"cacheName"`
    PendingView   View   `json:"pendingView"`
    CommittedView View   `json:"committedView"`
}

type ViewCommitBody struct {
    CacheName string `json:"cacheName"`
    ViewID    int    `json:"viewId"`
}

type ViewRollbackBody struct {
    CacheName       string `json:"cacheName"`
    NewViewID       int    `json:"newViewId"`
    CommittedViewID int    `json:"committedViewId"`
}

type ViewRecoverBody struct {
}

// ViewCommandResponse is the reply to a ViewCommand. Views is only populated
// in replies to ViewRecover and maps each cache the responder runs to the last
// view it committed.
type ViewCommandResponse struct {
    Success bool            `json:"success"`
    Error   string          `json:"error,omitempty"`
    Views   map[string]View `json:"views,omitempty"`
}

func SuccessResponse() ViewCommandResponse {
    return ViewCommandResponse{Success: true}
}

func ErrorResponse(err error) ViewCommandResponse {
    return ViewCommandResponse{Success: false, Error: err.Error()}
}

func CreateViewCommand(sender Address, body interface{}) (ViewCommand, error) {
    var command ViewCommand = ViewCommand{
        Sender: sender,
    }

    switch body.(type) {
    case ViewRequestJoinBody:
        command.Type = ViewRequestJoin
    case ViewRequestLeaveBody:
        command.Type = ViewRequestLeave
    case ViewPrepareBody:
        command.Type = ViewPrepare
    case ViewCommitBody:
        command.Type = ViewCommit
    case ViewRollbackBody:
        command.Type = ViewRollback
    case ViewRecoverBody:
        command.Type = ViewRecover
    default:
        return ViewCommand{}, ENoSuchCommand
    }

    encodedBody, err := EncodeViewCommandBody(body)

    if err != nil {
        return ViewCommand{}, err
    }

    command.Data = encodedBody

    return command, nil
}

func EncodeViewCommand(command ViewCommand) ([]byte, error) {
    return json.Marshal(command)
}

func DecodeViewCommand(encodedCommand []byte) (ViewCommand, error) {
    var command ViewCommand

    if err := json.Unmarshal(encodedCommand, &command); err != nil {
        return ViewCommand{}, ECouldNotParseCommand
    }

    return command, nil
}

func EncodeViewCommandBody(body interface{}) ([]byte, error) {
    return json.Marshal(body)
}

func DecodeViewCommandBody(command ViewCommand) (interface{}, error) {
    switch command.Type {
    case ViewRequestJoin:
        var body ViewRequestJoinBody

        if err := json.Unmarshal(command.Data, &body); err != nil {
            return nil, ECouldNotParseCommand
        }

        return body, nil
    case ViewRequestLeave:
        var body ViewRequestLeaveBody

        if err := json.Unmarshal(command.Data, &body); err != nil {
            return nil, ECouldNotParseCommand
        }

        return body, nil
    case ViewPrepare:
        var body ViewPrepareBody

        if err := json.Unmarshal(command.Data, &body); err != nil {
            return nil, ECouldNotParseCommand
        }

        return body, nil
    case ViewCommit:
        var body ViewCommitBody

        if err := json.Unmarshal(command.Data, &body); err != nil {
            return nil, ECouldNotParseCommand
        }

        return body, nil
    case ViewRollback:
        var body ViewRollbackBody

        if err := json.Unmarshal(command.Data, &body); err != nil {
            return nil, ECouldNotParseCommand
        }

        return body, nil
    case ViewRecover:
        return ViewRecoverBody{}, nil
    default:
        return nil, ENoSuchCommand
    }
}
