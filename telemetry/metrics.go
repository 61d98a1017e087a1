package telemetry

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
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    . "github.com/PelionIoT/cacheviews/cluster"
)

var (
    Registry = prometheus.NewRegistry()

    Proposals = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "proposals_total",
            Help:      "Views proposed by this node while it was coordinator.",
        },
        []string{"cache"},
    )

    Installations = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "installations_total",
            Help:      "Finished view installations by outcome (committed, rolledback, aborted).",
        },
        []string{"cache", "outcome"},
    )

    InstallDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "cacheviews",
            Name:      "install_duration_seconds",
            Help:      "Time from proposal to commit or rollback.",
            Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
        },
        []string{"cache"},
    )

    BroadcastFailures = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "broadcast_failures_total",
            Help:      "Targets that did not acknowledge a view command.",
        },
        []string{"phase"},
    )

    Recoveries = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "recoveries_total",
            Help:      "Recovery passes run after a coordinator change or merge.",
        },
    )

    CoordinatorChanges = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "coordinator_changes_total",
            Help:      "Times this node became coordinator.",
        },
    )

    CommittedViewID = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "cacheviews",
            Name:      "committed_view_id",
            Help:      "Id of the view most recently committed on this node.",
        },
        []string{"cache"},
    )

    CommittedViewSize = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "cacheviews",
            Name:      "committed_view_members",
            Help:      "Number of members of the view most recently committed on this node.",
        },
        []string{"cache"},
    )

    RequestsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "cacheviews",
            Name:      "requests_total",
            Help:      "Total number of HTTP requests.",
        },
        []string{"op", "status"},
    )

    startTime = time.Now()
    uptime    = prometheus.NewGaugeFunc(
        prometheus.GaugeOpts{
            Namespace: "cacheviews",
            Name:      "uptime_seconds",
            Help:      "Process uptime in seconds.",
        },
        func() float64 { return time.Since(startTime).Seconds() },
    )
)

func init() {
    Registry.MustRegister(
        Proposals,
        Installations,
        InstallDuration,
        BroadcastFailures,
        Recoveries,
        CoordinatorChanges,
        CommittedViewID,
        CommittedViewSize,
        RequestsTotal,
        uptime,
    )
}

func MetricsHandler() http.Handler {
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordDelta keeps the committed view gauges in line with the local node.
// Register it with ViewsManager.OnLocalUpdates.
func RecordDelta(delta ViewDelta) {
    if delta.Type == DeltaViewPrepared {
        return
    }

    CommittedViewID.WithLabelValues(delta.CacheName).Set(float64(delta.View.ID()))
    CommittedViewSize.WithLabelValues(delta.CacheName).Set(float64(delta.View.Size()))
}

type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the wrapper
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    hijacker, ok := w.ResponseWriter.(http.Hijacker)

    if !ok {
        return nil, nil, errors.New("The response writer does not support hijacking")
    }

    return hijacker.Hijack()
}

// Instrument counts requests handled by next under the op label
func Instrument(op string, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

        next.ServeHTTP(sw, r)

        RequestsTotal.WithLabelValues(op, strconv.Itoa(sw.status/100)+"xx").Inc()
    })
}
