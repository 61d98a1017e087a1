package main

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
    "fmt"
)

var templateConfig string = `# The node ID identifies this node to its peers. It must be unique within the
# cluster. If it is left empty a random ID is generated at startup.
nodeID: node-1

# The host and port at which peers and admin clients reach this node
host: localhost
port: 9090

# Static membership. Every node in the cluster should list the same peers.
# The live peer with the lowest ID coordinates view changes. Leave the list
# empty to run a single node or when etcd is used.
peers:
# Uncomment these next lines if there are other nodes in the cluster and edit
# accordingly
#    - id: node-1
#      host: 127.0.0.1
#      port: 9090
#    - id: node-2
#      host: 127.0.0.1
#      port: 9191

# How often, in milliseconds, static peers are probed for liveness
probeInterval: 1000

# Dynamic membership through etcd. Cannot be combined with peers. The oldest
# registered node coordinates view changes.
#etcd:
#    endpoints: [ "127.0.0.1:2379" ]
#    prefix: /cacheviews
#    # lease TTL in seconds
#    ttl: 10

# Caches this node joins as soon as it starts
caches:
#    - users
#    - sessions

# How long, in milliseconds, the coordinator waits for nodes to answer a
# prepare, commit, rollback or recovery request
viewTimeout: 10000

# The minimum time, in milliseconds, between two rounds of view installations.
# Join and leave requests arriving during this time are batched into one view.
cooldown: 1000

# Upper bound on the number of caches whose views are installed concurrently
installWorkers: 8

# Committed and rolled back views are journaled here. Leave out to keep the
# history in memory only. A limit of 0 keeps every entry.
history:
    dir: /tmp/cacheviews
    entryLimit: 10000

# Limit on concurrent HTTP connections. 0 means no limit.
maxConnections: 0

# The log level can be one of critical, error, warning, notice, info or debug
logLevel: info
`

func init() {
    registerCommand("conf", generateConfig, confUsage)
}

var confUsage string = `conf > path/to/output.yaml
`

func generateConfig() {
    fmt.Print(templateConfig)
}
