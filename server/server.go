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
    "context"
    "errors"
    "net"
    "net/http"
    "net/http/pprof"
    "strconv"
    "sync"
    "time"

    "github.com/gorilla/mux"
    "github.com/syndtr/goleveldb/leveldb"
    "github.com/syndtr/goleveldb/leveldb/storage"
    "golang.org/x/net/netutil"

    . "github.com/PelionIoT/cacheviews/cluster"
    "github.com/PelionIoT/cacheviews/historian"
    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/membership"
    "github.com/PelionIoT/cacheviews/routes"
    "github.com/PelionIoT/cacheviews/telemetry"
    "github.com/PelionIoT/cacheviews/transport"
    "github.com/PelionIoT/cacheviews/views"
)

var EStorage = errors.New("Unable to open the view history")
var EStopped = errors.New("The server was stopped")

// Server hosts the views manager of one node along with its peer transport
// and admin API
type Server struct {
    config          ServerConfig
    httpServer      *http.Server
    listener        net.Listener
    port            int
    transport       *transport.HTTPTransport
    provider        membership.Provider
    viewsManager    *views.ViewsManager
    historian       *historian.Historian
    eventsEndpoint  *routes.EventsEndpoint
    listenerFactory func(cacheName string) ViewListener
    stopped         bool
    lock            sync.Mutex
}

// NewServer binds the server's port and wires its components together. Call
// Start to begin serving.
func NewServer(serverConfig ServerConfig) (*Server, error) {
    if len(serverConfig.Host) == 0 {
        serverConfig.Host = "localhost"
    }

    listener, err := net.Listen("tcp", "0.0.0.0:"+strconv.Itoa(serverConfig.Port))

    if err != nil {
        Log.Errorf("Error listening on port %d: %v", serverConfig.Port, err)

        return nil, err
    }

    server := &Server{
        config:          serverConfig,
        port:            listener.Addr().(*net.TCPAddr).Port,
        listenerFactory: serverConfig.ListenerFactory,
        eventsEndpoint:  routes.NewEventsEndpoint(),
    }

    if server.listenerFactory == nil {
        server.listenerFactory = newLoggingListener
    }

    if serverConfig.MaxConnections > 0 {
        listener = netutil.LimitListener(listener, serverConfig.MaxConnections)
    }

    server.listener = listener

    if err := server.openHistorian(); err != nil {
        listener.Close()

        return nil, err
    }

    self := transport.PeerAddress{
        NodeID: serverConfig.NodeID,
        Host:   serverConfig.Host,
        Port:   server.port,
    }

    server.transport = transport.NewHTTPTransport(self)
    server.viewsManager = views.NewViewsManager(views.ViewsManagerConfig{
        Transport:      server.transport,
        Timeout:        serverConfig.ViewTimeout,
        Cooldown:       serverConfig.Cooldown,
        InstallWorkers: serverConfig.InstallWorkers,
    })
    server.transport.SetHandler(server.viewsManager)

    for _, peer := range serverConfig.Peers {
        server.transport.AddPeer(peer)
    }

    if len(serverConfig.EtcdEndpoints) != 0 {
        server.provider = membership.NewEtcdProvider(membership.EtcdProviderConfig{
            Self:      self,
            Endpoints: serverConfig.EtcdEndpoints,
            Prefix:    serverConfig.EtcdPrefix,
            TTL:       serverConfig.EtcdTTL,
        })
    } else {
        server.provider = membership.NewStaticProvider(membership.StaticProviderConfig{
            Self:          self,
            Peers:         serverConfig.Peers,
            ProbeInterval: serverConfig.ProbeInterval,
        })
    }

    server.provider.OnChange(func(members []transport.PeerAddress, merge bool) {
        Log.Infof("Node %s accepted membership %v (merge = %v)", self.NodeID, membership.NodeIDs(members), merge)

        server.transport.SetMembers(members)
        server.viewsManager.ViewAccepted(membership.NodeIDs(members), merge)
    })

    server.viewsManager.OnLocalUpdates(telemetry.RecordDelta)
    server.viewsManager.OnLocalUpdates(server.historian.Record)
    server.viewsManager.OnLocalUpdates(server.eventsEndpoint.Publish)

    return server, nil
}

func (server *Server) openHistorian() error {
    if len(server.config.HistoryDir) == 0 {
        db, err := leveldb.Open(storage.NewMemStorage(), nil)

        if err != nil {
            return EStorage
        }

        server.historian = historian.NewHistorian(db, server.config.HistoryEntryLimit)

        return nil
    }

    history, err := historian.OpenHistorian(server.config.HistoryDir, server.config.HistoryEntryLimit)

    if err != nil {
        Log.Criticalf("Unable to open view history at %s: %v", server.config.HistoryDir, err)

        return EStorage
    }

    server.historian = history

    return nil
}

func (server *Server) Port() int {
    return server.port
}

func (server *Server) ViewsManager() *views.ViewsManager {
    return server.viewsManager
}

func (server *Server) Router() *mux.Router {
    r := mux.NewRouter()

    // events must be attached ahead of the per-cache routes
    server.eventsEndpoint.Attach(r)
    (&routes.ViewsEndpoint{ViewsFacade: server}).Attach(r)
    (&routes.ClusterEndpoint{ViewsFacade: server}).Attach(r)
    server.transport.Attach(r)

    r.Handle("/metrics", telemetry.MetricsHandler()).Methods("GET")
    r.HandleFunc("/debug/pprof/", pprof.Index)
    r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
    r.HandleFunc("/debug/pprof/profile", pprof.Profile)
    r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)

    return r
}

// Start serves the admin API and peer endpoints until Stop is called
func (server *Server) Start() error {
    server.lock.Lock()

    if server.stopped || server.httpServer != nil {
        server.lock.Unlock()

        return EStopped
    }

    server.httpServer = &http.Server{
        Handler:      telemetry.Instrument("http", server.Router()),
        WriteTimeout: 15 * time.Second,
        ReadTimeout:  15 * time.Second,
    }

    server.viewsManager.Start()
    server.lock.Unlock()

    if err := server.provider.Start(); err != nil {
        Log.Errorf("Node %s unable to start membership: %v", server.config.NodeID, err)

        server.Stop()

        return err
    }

    serveErr := make(chan error, 1)

    go func() {
        serveErr <- server.httpServer.Serve(server.listener)
    }()

    Log.Infof("Node %s listening on port %d", server.config.NodeID, server.port)

    for _, cacheName := range server.config.Caches {
        if err := server.JoinCache(context.Background(), cacheName); err != nil {
            Log.Warningf("Node %s unable to join cache %s at startup: %v", server.config.NodeID, cacheName, err)
        }
    }

    err := <-serveErr

    Log.Errorf("Node %s server shutting down. Reason: %v", server.config.NodeID, err)

    return err
}

func (server *Server) Stop() error {
    server.lock.Lock()
    defer server.lock.Unlock()

    if server.stopped {
        return nil
    }

    server.stopped = true
    server.provider.Stop()
    server.viewsManager.Stop()

    if server.httpServer != nil {
        server.httpServer.Close()
    } else {
        server.listener.Close()
    }

    server.historian.Close()

    return nil
}

func (server *Server) LocalNodeID() Address {
    return server.viewsManager.Address()
}

func (server *Server) Coordinator() Address {
    return server.viewsManager.Coordinator()
}

func (server *Server) Members() []Address {
    return server.viewsManager.Members()
}

func (server *Server) Caches() []string {
    return server.viewsManager.Caches()
}

func (server *Server) HasCache(cacheName string) bool {
    return server.viewsManager.HasCache(cacheName)
}

func (server *Server) CommittedView(cacheName string) View {
    return server.viewsManager.CommittedView(cacheName)
}

func (server *Server) PendingView(cacheName string) *View {
    return server.viewsManager.PendingView(cacheName)
}

func (server *Server) JoinCache(ctx context.Context, cacheName string) error {
    return server.viewsManager.Join(ctx, cacheName, server.listenerFactory(cacheName))
}

func (server *Server) LeaveCache(ctx context.Context, cacheName string) error {
    return server.viewsManager.Leave(ctx, cacheName)
}

func (server *Server) History(cacheName string) ([]historian.HistoryEntry, error) {
    return server.historian.History(cacheName)
}
