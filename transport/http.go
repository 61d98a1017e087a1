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
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "io/ioutil"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/gorilla/mux"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

const (
    RequestTimeoutSeconds = 10
    ViewCommandsEndpoint  = "/viewcommands"
)

type PeerAddress struct {
    NodeID Address `json:"id"`
    Host   string  `json:"host"`
    Port   int     `json:"port"`
}

func (peerAddress PeerAddress) IsEmpty() bool {
    return peerAddress.NodeID == ""
}

func (peerAddress PeerAddress) ToHTTPURL(endpoint string) string {
    return fmt.Sprintf("http://%s:%d%s", peerAddress.Host, peerAddress.Port, endpoint)
}

// HTTPTransport delivers view commands as JSON over HTTP. Membership is pushed
// into it by a membership provider through SetMembers. The first member is
// the coordinator.
type HTTPTransport struct {
    self       PeerAddress
    peers      map[Address]PeerAddress
    members    []Address
    httpClient *http.Client
    handler    CommandHandler
    lock       sync.Mutex
}

func NewHTTPTransport(self PeerAddress) *HTTPTransport {
    return &HTTPTransport{
        self:    self,
        peers:   map[Address]PeerAddress{self.NodeID: self},
        members: []Address{self.NodeID},
        httpClient: &http.Client{
            Timeout: time.Second * RequestTimeoutSeconds,
        },
    }
}

func (hub *HTTPTransport) SetHandler(handler CommandHandler) {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    hub.handler = handler
}

func (hub *HTTPTransport) AddPeer(peerAddress PeerAddress) {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    hub.peers[peerAddress.NodeID] = peerAddress
}

func (hub *HTTPTransport) RemovePeer(nodeID Address) {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    if nodeID == hub.self.NodeID {
        return
    }

    delete(hub.peers, nodeID)
}

func (hub *HTTPTransport) PeerAddress(nodeID Address) PeerAddress {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    return hub.peers[nodeID]
}

// SetMembers replaces the current membership. Addresses of the members are
// remembered so that commands can be sent to them.
func (hub *HTTPTransport) SetMembers(members []PeerAddress) {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    hub.members = make([]Address, 0, len(members))

    for _, member := range members {
        hub.peers[member.NodeID] = member
        hub.members = append(hub.members, member.NodeID)
    }
}

func (hub *HTTPTransport) Members() []Address {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    members := make([]Address, len(hub.members))
    copy(members, hub.members)

    return members
}

func (hub *HTTPTransport) Coordinator() Address {
    hub.lock.Lock()
    defer hub.lock.Unlock()

    if len(hub.members) == 0 {
        return ""
    }

    return hub.members[0]
}

func (hub *HTTPTransport) IsCoordinator() bool {
    return hub.Coordinator() == hub.self.NodeID
}

func (hub *HTTPTransport) Address() Address {
    return hub.self.NodeID
}

func (hub *HTTPTransport) InvokeRemotely(ctx context.Context, targets []Address, command ViewCommand, mode ResponseMode, timeout time.Duration) (map[Address]ViewCommandResponse, error) {
    encodedCommand, err := EncodeViewCommand(command)

    if err != nil {
        return nil, err
    }

    return fanOut(ctx, targets, mode, timeout, func(ctx context.Context, target Address) (ViewCommandResponse, error) {
        response, err := hub.send(ctx, target, encodedCommand)

        if err != nil {
            Log.Warningf("Unable to send %v (request %s) to node %s: %v", command.Type, command.RequestID, target, err)
        }

        return response, err
    })
}

func (hub *HTTPTransport) send(ctx context.Context, target Address, encodedCommand []byte) (ViewCommandResponse, error) {
    hub.lock.Lock()
    peerAddress, ok := hub.peers[target]
    hub.lock.Unlock()

    if !ok {
        return ViewCommandResponse{}, EReceiverUnknown
    }

    request, err := http.NewRequest("POST", peerAddress.ToHTTPURL(ViewCommandsEndpoint), bytes.NewReader(encodedCommand))

    if err != nil {
        return ViewCommandResponse{}, err
    }

    request = request.WithContext(ctx)
    request.Header.Set("Content-Type", "application/json; charset=utf8")

    resp, err := hub.httpClient.Do(request)

    if err != nil {
        if strings.Contains(err.Error(), "Timeout") || ctx.Err() == context.DeadlineExceeded {
            return ViewCommandResponse{}, ETimeout
        }

        return ViewCommandResponse{}, err
    }

    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        if resp.StatusCode == http.StatusForbidden {
            return ViewCommandResponse{}, ESenderUnknown
        }

        errorMessage, err := ioutil.ReadAll(resp.Body)

        if err != nil {
            return ViewCommandResponse{}, err
        }

        return ViewCommandResponse{}, errors.New(fmt.Sprintf("Received error code from server: (%d) %s", resp.StatusCode, string(errorMessage)))
    }

    var response ViewCommandResponse

    if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
        return ViewCommandResponse{}, err
    }

    return response, nil
}

func (hub *HTTPTransport) Attach(router *mux.Router) {
    router.HandleFunc(ViewCommandsEndpoint, func(w http.ResponseWriter, r *http.Request) {
        encodedCommand, err := ioutil.ReadAll(r.Body)

        if err != nil {
            Log.Warningf("POST %s: Unable to read message body", ViewCommandsEndpoint)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        command, err := DecodeViewCommand(encodedCommand)

        if err != nil {
            Log.Warningf("POST %s: Unable to parse message body", ViewCommandsEndpoint)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusBadRequest)
            io.WriteString(w, "\n")

            return
        }

        hub.lock.Lock()
        _, ok := hub.peers[command.Sender]
        handler := hub.handler
        hub.lock.Unlock()

        if !ok {
            Log.Warningf("POST %s: Sender node (%s) is not known by this node", ViewCommandsEndpoint, command.Sender)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusForbidden)
            io.WriteString(w, "\n")

            return
        }

        if handler == nil {
            Log.Warningf("POST %s: No handler is attached", ViewCommandsEndpoint)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusServiceUnavailable)
            io.WriteString(w, "\n")

            return
        }

        response := handler.HandleViewCommand(r.Context(), command)
        encodedResponse, _ := json.Marshal(response)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedResponse)+"\n")
    }).Methods("POST")
}
