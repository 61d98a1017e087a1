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
    "context"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/olekukonko/tablewriter"

    "github.com/PelionIoT/cacheviews/client"
    . "github.com/PelionIoT/cacheviews/cluster"
)

func init() {
    registerCommand("status", showStatus, statusUsage)
    registerCommand("join", joinCache, joinUsage)
    registerCommand("leave", leaveCache, leaveUsage)
    registerCommand("history", showHistory, historyUsage)
}

var statusUsage string = `status [-servers=host:port,...]
`

var joinUsage string = `join -cache=[cache name] [-servers=host:port]
`

var leaveUsage string = `leave -cache=[cache name] [-servers=host:port]
`

var historyUsage string = `history -cache=[cache name] [-servers=host:port]
`

func apiClient() *client.APIClient {
    return client.New(client.APIClientConfig{
        Servers: servers(),
        Timeout: *optTimeout,
    })
}

func requireCache() {
    if len(*optCache) == 0 {
        fmt.Fprintf(os.Stderr, "No cache (-cache) specified\n")

        os.Exit(1)
    }
}

func formatMembers(members []Address) string {
    names := make([]string, len(members))

    for i, member := range members {
        names[i] = string(member)
    }

    return strings.Join(names, ",")
}

func showStatus() {
    ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
    defer cancel()

    apiClient := apiClient()
    overview, err := apiClient.Cluster(ctx)

    if err != nil {
        fmt.Fprintf(os.Stderr, "Unable to get cluster overview: %v\n", err)

        os.Exit(1)
    }

    summaries, err := apiClient.Views(ctx)

    if err != nil {
        fmt.Fprintf(os.Stderr, "Unable to list views: %v\n", err)

        os.Exit(1)
    }

    fmt.Printf("Node: %s\nCoordinator: %s\nMembers: %s\n\n", overview.NodeID, overview.Coordinator, formatMembers(overview.Members))

    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{"Cache", "View", "Members", "Pending", "Member"})

    for _, summary := range summaries {
        pending := "-"

        if summary.PendingView != nil {
            pending = summary.PendingView.String()
        }

        table.Append([]string{
            summary.CacheName,
            strconv.Itoa(summary.CommittedView.ID()),
            formatMembers(summary.CommittedView.Members()),
            pending,
            strconv.FormatBool(summary.Member),
        })
    }

    table.Render()
}

func joinCache() {
    requireCache()

    ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
    defer cancel()

    if err := apiClient().Join(ctx, *optCache); err != nil {
        fmt.Fprintf(os.Stderr, "Unable to join cache %s: %v\n", *optCache, err)

        os.Exit(1)
    }
}

func leaveCache() {
    requireCache()

    ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
    defer cancel()

    if err := apiClient().Leave(ctx, *optCache); err != nil {
        fmt.Fprintf(os.Stderr, "Unable to leave cache %s: %v\n", *optCache, err)

        os.Exit(1)
    }
}

func showHistory() {
    requireCache()

    ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
    defer cancel()

    entries, err := apiClient().History(ctx, *optCache)

    if err != nil {
        fmt.Fprintf(os.Stderr, "Unable to get history of cache %s: %v\n", *optCache, err)

        os.Exit(1)
    }

    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{"Serial", "Time", "Kind", "View", "Members"})

    for _, entry := range entries {
        table.Append([]string{
            strconv.FormatUint(entry.Serial, 10),
            time.Unix(0, int64(entry.Timestamp)*int64(time.Millisecond)).Format(time.RFC3339),
            entry.Kind,
            strconv.Itoa(entry.View.ID()),
            formatMembers(entry.View.Members()),
        })
    }

    table.Render()
}
