package membership

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
    "net/http"
    "sort"
    "sync"
    "time"

    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/transport"
)

const DefaultProbeInterval = time.Second

type StaticProviderConfig struct {
    Self          transport.PeerAddress
    Peers         []transport.PeerAddress
    ProbeInterval time.Duration
}

// StaticProvider derives membership from a fixed list of peers by probing
// their health endpoint. Members are ordered by node id so that every node
// picks the same coordinator.
type StaticProvider struct {
    self          transport.PeerAddress
    peers         []transport.PeerAddress
    probeInterval time.Duration
    httpClient    *http.Client
    tracker       *memberTracker
    stop          chan struct{}
    done          chan struct{}
    lock          sync.Mutex
}

func NewStaticProvider(config StaticProviderConfig) *StaticProvider {
    if config.ProbeInterval <= 0 {
        config.ProbeInterval = DefaultProbeInterval
    }

    peers := make([]transport.PeerAddress, 0, len(config.Peers))

    for _, peer := range config.Peers {
        if peer.NodeID != config.Self.NodeID {
            peers = append(peers, peer)
        }
    }

    return &StaticProvider{
        self:          config.Self,
        peers:         peers,
        probeInterval: config.ProbeInterval,
        httpClient:    &http.Client{Timeout: config.ProbeInterval},
        tracker:       newMemberTracker([]transport.PeerAddress{config.Self}),
    }
}

func (provider *StaticProvider) Start() error {
    provider.lock.Lock()
    defer provider.lock.Unlock()

    if provider.stop != nil {
        return nil
    }

    provider.stop = make(chan struct{})
    provider.done = make(chan struct{})

    go provider.run(provider.stop, provider.done)

    return nil
}

func (provider *StaticProvider) Stop() {
    provider.lock.Lock()

    if provider.stop == nil {
        provider.lock.Unlock()

        return
    }

    close(provider.stop)
    done := provider.done
    provider.stop = nil
    provider.lock.Unlock()

    <-done
}

func (provider *StaticProvider) Members() []transport.PeerAddress {
    return provider.tracker.Members()
}

func (provider *StaticProvider) OnChange(listener ChangeListener) {
    provider.tracker.OnChange(listener)
}

func (provider *StaticProvider) run(stop chan struct{}, done chan struct{}) {
    defer close(done)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    go func() {
        <-stop
        cancel()
    }()

    for {
        provider.Probe(ctx)

        select {
        case <-stop:
            return
        case <-time.After(provider.probeInterval):
        }
    }
}

// Probe checks every peer once and updates the membership
func (provider *StaticProvider) Probe(ctx context.Context) {
    reachable := make([]bool, len(provider.peers))
    var wg sync.WaitGroup

    for i, peer := range provider.peers {
        wg.Add(1)

        go func(i int, peer transport.PeerAddress) {
            defer wg.Done()

            reachable[i] = provider.probe(ctx, peer)
        }(i, peer)
    }

    wg.Wait()

    if ctx.Err() != nil {
        return
    }

    members := []transport.PeerAddress{provider.self}

    for i, peer := range provider.peers {
        if reachable[i] {
            members = append(members, peer)
        }
    }

    sort.Slice(members, func(i, j int) bool {
        return members[i].NodeID < members[j].NodeID
    })

    provider.tracker.Update(members)
}

func (provider *StaticProvider) probe(ctx context.Context, peer transport.PeerAddress) bool {
    request, err := http.NewRequest("GET", peer.ToHTTPURL(HealthEndpoint), nil)

    if err != nil {
        return false
    }

    resp, err := provider.httpClient.Do(request.WithContext(ctx))

    if err != nil {
        Log.Debugf("Health probe of node %s failed: %v", peer.NodeID, err)

        return false
    }

    resp.Body.Close()

    return resp.StatusCode == http.StatusOK
}
