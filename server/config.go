package server

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
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
    "github.com/PelionIoT/cacheviews/shared"
    "github.com/PelionIoT/cacheviews/transport"
)

type ServerConfig struct {
    NodeID Address
    Host   string
    Port   int
    // Static membership. Ignored when EtcdEndpoints is set
    Peers         []transport.PeerAddress
    ProbeInterval time.Duration
    EtcdEndpoints []string
    EtcdPrefix    string
    EtcdTTL       int64
    // Caches joined as soon as the server starts
    Caches         []string
    ViewTimeout    time.Duration
    Cooldown       time.Duration
    InstallWorkers int
    // When empty the view history is kept in memory
    HistoryDir        string
    HistoryEntryLimit uint64
    MaxConnections    int
    // Supplies the listener used when a cache is joined through the admin API
    // or the Caches list. Defaults to a listener that only logs.
    ListenerFactory func(cacheName string) ViewListener
}

func NewServerConfig(ysc *shared.YAMLServerConfig) ServerConfig {
    serverConfig := ServerConfig{
        NodeID:         Address(ysc.NodeID),
        Host:           ysc.Host,
        Port:           ysc.Port,
        Peers:          make([]transport.PeerAddress, 0, len(ysc.Peers)),
        ProbeInterval:  ysc.ProbeIntervalDuration(),
        Caches:         ysc.Caches,
        ViewTimeout:    ysc.ViewTimeoutDuration(),
        Cooldown:       ysc.CooldownDuration(),
        InstallWorkers: ysc.InstallWorkers,
        MaxConnections: ysc.MaxConnections,
    }

    for _, peer := range ysc.Peers {
        serverConfig.Peers = append(serverConfig.Peers, transport.PeerAddress{
            NodeID: Address(peer.ID),
            Host:   peer.Host,
            Port:   peer.Port,
        })
    }

    if ysc.Etcd != nil {
        serverConfig.EtcdEndpoints = ysc.Etcd.Endpoints
        serverConfig.EtcdPrefix = ysc.Etcd.Prefix
        serverConfig.EtcdTTL = ysc.Etcd.TTL
    }

    if ysc.History != nil {
        serverConfig.HistoryDir = ysc.History.Dir
        serverConfig.HistoryEntryLimit = ysc.History.EntryLimit
    }

    return serverConfig
}
