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
    "encoding/json"
    "fmt"
    "sync"
    "time"

    clientv3 "go.etcd.io/etcd/client/v3"
    "go.uber.org/zap"

    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/transport"
)

const (
    DefaultEtcdPrefix = "/cacheviews"
    DefaultEtcdTTL    = 10
)

type EtcdProviderConfig struct {
    Self      transport.PeerAddress
    Endpoints []string
    Prefix    string
    // lease ttl in seconds
    TTL int64
}

// EtcdProvider registers this node under a lease and derives membership from
// every registered node. Members are ordered by the revision at which they
// registered so the oldest live node is coordinator.
type EtcdProvider struct {
    config  EtcdProviderConfig
    client  *clientv3.Client
    leaseID clientv3.LeaseID
    tracker *memberTracker
    cancel  context.CancelFunc
    done    chan struct{}
    lock    sync.Mutex
}

func NewEtcdProvider(config EtcdProviderConfig) *EtcdProvider {
    if config.Prefix == "" {
        config.Prefix = DefaultEtcdPrefix
    }

    if config.TTL <= 0 {
        config.TTL = DefaultEtcdTTL
    }

    return &EtcdProvider{
        config:  config,
        tracker: newMemberTracker([]transport.PeerAddress{config.Self}),
    }
}

func NodesPrefix(prefix string) string {
    return fmt.Sprintf("%s/nodes/", prefix)
}

func NodeKey(prefix string, peer transport.PeerAddress) string {
    return NodesPrefix(prefix) + string(peer.NodeID)
}

func EncodeNodeRecord(peer transport.PeerAddress) ([]byte, error) {
    return json.Marshal(peer)
}

func DecodeNodeRecord(value []byte) (transport.PeerAddress, error) {
    var peer transport.PeerAddress

    if err := json.Unmarshal(value, &peer); err != nil {
        return transport.PeerAddress{}, err
    }

    return peer, nil
}

func (provider *EtcdProvider) Start() error {
    provider.lock.Lock()
    defer provider.lock.Unlock()

    if provider.client != nil {
        return nil
    }

    client, err := clientv3.New(clientv3.Config{
        Endpoints:   provider.config.Endpoints,
        DialTimeout: 5 * time.Second,
        Logger:      zap.NewNop(),
    })

    if err != nil {
        Log.Errorf("Unable to create etcd client for %v: %v", provider.config.Endpoints, err)

        return err
    }

    ctx, cancel := context.WithCancel(context.Background())

    leaseID, err := provider.register(ctx, client)

    if err != nil {
        cancel()
        client.Close()

        return err
    }

    provider.client = client
    provider.leaseID = leaseID
    provider.cancel = cancel
    provider.done = make(chan struct{})

    if err := provider.reload(ctx); err != nil {
        Log.Warningf("Unable to read the initial membership from etcd: %v", err)
    }

    go provider.watch(ctx, provider.done)

    return nil
}

func (provider *EtcdProvider) register(ctx context.Context, client *clientv3.Client) (clientv3.LeaseID, error) {
    lease, err := client.Grant(ctx, provider.config.TTL)

    if err != nil {
        Log.Errorf("Unable to obtain an etcd lease: %v", err)

        return 0, err
    }

    record, err := EncodeNodeRecord(provider.config.Self)

    if err != nil {
        return 0, err
    }

    if _, err := client.Put(ctx, NodeKey(provider.config.Prefix, provider.config.Self), string(record), clientv3.WithLease(lease.ID)); err != nil {
        Log.Errorf("Unable to register node %s in etcd: %v", provider.config.Self.NodeID, err)

        return 0, err
    }

    keepAlive, err := client.KeepAlive(ctx, lease.ID)

    if err != nil {
        return 0, err
    }

    go func() {
        for range keepAlive {
        }

        if ctx.Err() == nil {
            Log.Errorf("etcd lease of node %s expired", provider.config.Self.NodeID)
        }
    }()

    Log.Infof("Registered node %s in etcd under lease %x", provider.config.Self.NodeID, lease.ID)

    return lease.ID, nil
}

func (provider *EtcdProvider) watch(ctx context.Context, done chan struct{}) {
    defer close(done)

    watchChan := provider.client.Watch(ctx, NodesPrefix(provider.config.Prefix), clientv3.WithPrefix())

    for watchResponse := range watchChan {
        if err := watchResponse.Err(); err != nil {
            Log.Warningf("etcd watch error: %v", err)

            continue
        }

        if err := provider.reload(ctx); err != nil {
            Log.Warningf("Unable to reload membership from etcd: %v", err)
        }
    }
}

func (provider *EtcdProvider) reload(ctx context.Context) error {
    resp, err := provider.client.Get(ctx, NodesPrefix(provider.config.Prefix), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend))

    if err != nil {
        return err
    }

    members := make([]transport.PeerAddress, 0, len(resp.Kvs))

    for _, kv := range resp.Kvs {
        peer, err := DecodeNodeRecord(kv.Value)

        if err != nil {
            Log.Warningf("Ignoring malformed node record at %s: %v", string(kv.Key), err)

            continue
        }

        members = append(members, peer)
    }

    provider.tracker.Update(members)

    return nil
}

func (provider *EtcdProvider) Stop() {
    provider.lock.Lock()
    defer provider.lock.Unlock()

    if provider.client == nil {
        return
    }

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()

    if _, err := provider.client.Revoke(ctx, provider.leaseID); err != nil {
        Log.Warningf("Unable to revoke etcd lease of node %s: %v", provider.config.Self.NodeID, err)
    }

    provider.cancel()
    <-provider.done
    provider.client.Close()
    provider.client = nil
}

func (provider *EtcdProvider) Members() []transport.PeerAddress {
    return provider.tracker.Members()
}

func (provider *EtcdProvider) OnChange(listener ChangeListener) {
    provider.tracker.OnChange(listener)
}
