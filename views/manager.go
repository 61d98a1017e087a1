package views

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
    "sort"
    "sync"
    "time"

    "golang.org/x/sync/semaphore"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/telemetry"
    "github.com/PelionIoT/cacheviews/util"
)

var EStopped = errors.New("The views manager is not running")
var EPrepareFailed = errors.New("Not every member of the proposed view prepared it")
var ENoCoordinator = errors.New("There is no coordinator to send the request to")
var ERequestFailed = errors.New("The coordinator did not accept the request")

const (
    DefaultTimeout        = 10 * time.Second
    DefaultCooldown       = time.Second
    DefaultInstallWorkers = 8
)

type ViewsManagerConfig struct {
    Transport Transport
    // How long to wait for replies to prepare, commit, rollback and recovery
    // broadcasts
    Timeout time.Duration
    // Minimum time between two rounds of view installations
    Cooldown time.Duration
    // Upper bound on view installations running at the same time
    InstallWorkers int
}

// ViewsManager agrees on one membership view per cache across the cluster.
// Every node runs one. The node that the transport reports as coordinator
// proposes new views and drives them through prepare and commit, or rollback
// if any member fails to prepare.
type ViewsManager struct {
    transport Transport
    self      Address
    timeout   time.Duration
    cooldown  time.Duration
    // cache name -> *ViewState. Entries are never removed since recovery
    // needs to know every cache this node has hosted
    viewsInfo sync.Map
    // guards members, coordinator, isCoordinator and the recovery flag
    membersLock        sync.RWMutex
    members            []Address
    coordinator        Address
    isCoordinator      bool
    shouldRecoverViews bool
    recoveryGeneration uint64
    wakeup             chan struct{}
    installSlots       *semaphore.Weighted
    installs           sync.WaitGroup
    updateCBs          []func(ViewDelta)
    updateCBLock       sync.RWMutex
    running            bool
    stop               chan struct{}
    stopped            chan struct{}
    lock               sync.Mutex
}

func NewViewsManager(config ViewsManagerConfig) *ViewsManager {
    if config.Timeout <= 0 {
        config.Timeout = DefaultTimeout
    }

    if config.Cooldown <= 0 {
        config.Cooldown = DefaultCooldown
    }

    if config.InstallWorkers <= 0 {
        config.InstallWorkers = DefaultInstallWorkers
    }

    return &ViewsManager{
        transport:    config.Transport,
        self:         config.Transport.Address(),
        timeout:      config.Timeout,
        cooldown:     config.Cooldown,
        wakeup:       make(chan struct{}, 1),
        installSlots: semaphore.NewWeighted(int64(config.InstallWorkers)),
    }
}

func (viewsManager *ViewsManager) Start() {
    viewsManager.lock.Lock()
    defer viewsManager.lock.Unlock()

    if viewsManager.running {
        return
    }

    viewsManager.running = true
    viewsManager.stop = make(chan struct{})
    viewsManager.stopped = make(chan struct{})

    viewsManager.membersLock.Lock()
    viewsManager.members = viewsManager.transport.Members()
    viewsManager.coordinator = viewsManager.transport.Coordinator()
    viewsManager.isCoordinator = viewsManager.transport.IsCoordinator()
    // a node that starts out as coordinator may be taking over from one
    // that just crashed
    viewsManager.shouldRecoverViews = viewsManager.isCoordinator
    viewsManager.recoveryGeneration++
    viewsManager.membersLock.Unlock()

    Log.Infof("Views manager on %s starting. Coordinator is %s", viewsManager.self, viewsManager.Coordinator())

    go viewsManager.run(viewsManager.stop, viewsManager.stopped)

    viewsManager.triggerViewInstallation()
}

// Stop ends the reconciliation loop and waits up to the view timeout for
// installations that are still running
func (viewsManager *ViewsManager) Stop() {
    viewsManager.lock.Lock()

    if !viewsManager.running {
        viewsManager.lock.Unlock()

        return
    }

    viewsManager.running = false
    close(viewsManager.stop)
    stopped := viewsManager.stopped
    viewsManager.lock.Unlock()

    <-stopped

    drained := make(chan struct{})

    go func() {
        viewsManager.installs.Wait()
        close(drained)
    }()

    select {
    case <-drained:
    case <-time.After(viewsManager.timeout):
        Log.Warningf("Views manager on %s stopped with view installations still in flight", viewsManager.self)
    }

    Log.Infof("Views manager on %s stopped", viewsManager.self)
}

func (viewsManager *ViewsManager) isRunning() bool {
    viewsManager.lock.Lock()
    defer viewsManager.lock.Unlock()

    return viewsManager.running
}

// OnLocalUpdates registers a callback that is invoked after every prepare,
// commit and rollback applied on this node
func (viewsManager *ViewsManager) OnLocalUpdates(cb func(ViewDelta)) {
    viewsManager.updateCBLock.Lock()
    defer viewsManager.updateCBLock.Unlock()

    viewsManager.updateCBs = append(viewsManager.updateCBs, cb)
}

func (viewsManager *ViewsManager) notifyLocalNode(deltaType ViewDeltaType, cacheName string, view View) {
    viewsManager.updateCBLock.RLock()
    defer viewsManager.updateCBLock.RUnlock()

    for _, cb := range viewsManager.updateCBs {
        cb(ViewDelta{Type: deltaType, CacheName: cacheName, View: view})
    }
}

func (viewsManager *ViewsManager) triggerViewInstallation() {
    select {
    case viewsManager.wakeup <- struct{}{}:
    default:
    }
}

// viewState returns the state for cacheName, creating it if this is the first
// time the cache is referenced
func (viewsManager *ViewsManager) viewState(cacheName string) *ViewState {
    if viewState, ok := viewsManager.viewsInfo.Load(cacheName); ok {
        return viewState.(*ViewState)
    }

    viewState, _ := viewsManager.viewsInfo.LoadOrStore(cacheName, NewViewState(cacheName))

    return viewState.(*ViewState)
}

func (viewsManager *ViewsManager) existingViewState(cacheName string) (*ViewState, bool) {
    viewState, ok := viewsManager.viewsInfo.Load(cacheName)

    if !ok {
        return nil, false
    }

    return viewState.(*ViewState), true
}

func (viewsManager *ViewsManager) Address() Address {
    return viewsManager.self
}

func (viewsManager *ViewsManager) Members() []Address {
    viewsManager.membersLock.RLock()
    defer viewsManager.membersLock.RUnlock()

    members := make([]Address, len(viewsManager.members))
    copy(members, viewsManager.members)

    return members
}

func (viewsManager *ViewsManager) Coordinator() Address {
    viewsManager.membersLock.RLock()
    defer viewsManager.membersLock.RUnlock()

    return viewsManager.coordinator
}

func (viewsManager *ViewsManager) IsCoordinator() bool {
    viewsManager.membersLock.RLock()
    defer viewsManager.membersLock.RUnlock()

    return viewsManager.isCoordinator
}

// Caches lists every cache this node has ever heard of, sorted by name
func (viewsManager *ViewsManager) Caches() []string {
    cacheNames := make([]string, 0)

    viewsManager.viewsInfo.Range(func(key, value interface{}) bool {
        cacheNames = append(cacheNames, key.(string))

        return true
    })

    sort.Strings(cacheNames)

    return cacheNames
}

func (viewsManager *ViewsManager) HasCache(cacheName string) bool {
    _, ok := viewsManager.existingViewState(cacheName)

    return ok
}

func (viewsManager *ViewsManager) CommittedView(cacheName string) View {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        return EmptyView
    }

    return viewState.CommittedView()
}

func (viewsManager *ViewsManager) PendingView(cacheName string) *View {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        return nil
    }

    return viewState.PendingView()
}

// Join registers listener for cacheName and asks the coordinator to include
// this node in the next view of the cache. It returns once the request has
// been accepted, not once the view is installed.
func (viewsManager *ViewsManager) Join(ctx context.Context, cacheName string, listener ViewListener) error {
    if !viewsManager.isRunning() {
        return EStopped
    }

    viewState := viewsManager.viewState(cacheName)
    viewState.SetListener(listener)

    Log.Infof("Node %s joining cache %s", viewsManager.self, cacheName)

    if viewsManager.IsCoordinator() {
        viewsManager.handleRequestJoin(cacheName, viewsManager.self)

        return nil
    }

    // Kept locally too so the request survives a coordinator change that
    // makes this node the coordinator.
    viewState.PendingChanges().RequestJoin(viewsManager.self)

    coordinator := viewsManager.Coordinator()

    if coordinator == "" {
        return ENoCoordinator
    }

    command, err := viewsManager.newCommand(ViewRequestJoinBody{CacheName: cacheName})

    if err != nil {
        return err
    }

    responses, err := viewsManager.transport.InvokeRemotely(ctx, []Address{coordinator}, command, SynchronousResponses, viewsManager.timeout)

    if err != nil {
        return err
    }

    if response, ok := responses[coordinator]; !ok || !response.Success {
        Log.Warningf("Coordinator %s did not accept the join request of %s for cache %s", coordinator, viewsManager.self, cacheName)

        return ERequestFailed
    }

    return nil
}

// Leave unregisters the listener for cacheName and tells every member that
// this node is leaving so that it is dropped from the next view
func (viewsManager *ViewsManager) Leave(ctx context.Context, cacheName string) error {
    if !viewsManager.isRunning() {
        return EStopped
    }

    viewState := viewsManager.viewState(cacheName)
    viewState.SetListener(nil)

    Log.Infof("Node %s leaving cache %s", viewsManager.self, cacheName)

    command, err := viewsManager.newCommand(ViewRequestLeaveBody{CacheName: cacheName})

    if err != nil {
        return err
    }

    targets := viewsManager.others(viewsManager.Members())
    responses, err := viewsManager.transport.InvokeRemotely(ctx, targets, command, SynchronousResponses, viewsManager.timeout)

    if err != nil {
        return err
    }

    for _, target := range targets {
        if response, ok := responses[target]; !ok || !response.Success {
            Log.Warningf("Node %s did not acknowledge that %s is leaving cache %s", target, viewsManager.self, cacheName)
        }
    }

    viewsManager.handleRequestLeave(cacheName, viewsManager.self)

    return nil
}

// ViewAccepted is called by the transport's membership source whenever the
// cluster membership changes. merge indicates that previously separated
// partitions can see each other again.
func (viewsManager *ViewsManager) ViewAccepted(members []Address, merge bool) {
    viewsManager.membersLock.Lock()

    wasCoordinator := viewsManager.isCoordinator
    viewsManager.members = NewAddressSet(members...).Addresses()
    viewsManager.coordinator = viewsManager.transport.Coordinator()
    viewsManager.isCoordinator = viewsManager.transport.IsCoordinator()

    if viewsManager.isCoordinator && (merge || !wasCoordinator) {
        viewsManager.shouldRecoverViews = true
        viewsManager.recoveryGeneration++
    }

    isCoordinator := viewsManager.isCoordinator
    coordinator := viewsManager.coordinator
    viewsManager.membersLock.Unlock()

    Log.Infof("Node %s received new membership %v (merge = %v). Coordinator is %s", viewsManager.self, members, merge, coordinator)

    if isCoordinator && !wasCoordinator {
        telemetry.CoordinatorChanges.Inc()
    }

    viewsManager.triggerViewInstallation()
}

func (viewsManager *ViewsManager) recoveryRequested() (bool, uint64) {
    viewsManager.membersLock.RLock()
    defer viewsManager.membersLock.RUnlock()

    return viewsManager.shouldRecoverViews && viewsManager.isCoordinator, viewsManager.recoveryGeneration
}

// recoveryDone clears the recovery flag unless another coordinator change or
// merge happened while recovery was running
func (viewsManager *ViewsManager) recoveryDone(generation uint64) {
    viewsManager.membersLock.Lock()
    defer viewsManager.membersLock.Unlock()

    if viewsManager.recoveryGeneration == generation {
        viewsManager.shouldRecoverViews = false
    }
}

func (viewsManager *ViewsManager) others(addresses []Address) []Address {
    others := make([]Address, 0, len(addresses))

    for _, address := range addresses {
        if address != viewsManager.self {
            others = append(others, address)
        }
    }

    return others
}

func (viewsManager *ViewsManager) newCommand(body interface{}) (ViewCommand, error) {
    command, err := CreateViewCommand(viewsManager.self, body)

    if err != nil {
        return ViewCommand{}, err
    }

    command.RequestID = util.NewRequestID()

    return command, nil
}
