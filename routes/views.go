package routes

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
    "io"
    "net/http"

    "github.com/gorilla/mux"

    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/views"
)

type ViewsEndpoint struct {
    ViewsFacade ViewsFacade
}

func (viewsEndpoint *ViewsEndpoint) summary(cacheName string) CacheViewSummary {
    committedView := viewsEndpoint.ViewsFacade.CommittedView(cacheName)

    return CacheViewSummary{
        CacheName:     cacheName,
        CommittedView: committedView,
        PendingView:   viewsEndpoint.ViewsFacade.PendingView(cacheName),
        Member:        committedView.Contains(viewsEndpoint.ViewsFacade.LocalNodeID()),
    }
}

func (viewsEndpoint *ViewsEndpoint) Attach(router *mux.Router) {
    // List the views of every cache known to this node
    router.HandleFunc("/views", func(w http.ResponseWriter, r *http.Request) {
        summaries := make([]CacheViewSummary, 0)

        for _, cacheName := range viewsEndpoint.ViewsFacade.Caches() {
            summaries = append(summaries, viewsEndpoint.summary(cacheName))
        }

        encodedSummaries, _ := json.Marshal(summaries)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedSummaries)+"\n")
    }).Methods("GET")

    router.HandleFunc("/views/{cache}", func(w http.ResponseWriter, r *http.Request) {
        cacheName := mux.Vars(r)["cache"]

        if !viewsEndpoint.ViewsFacade.HasCache(cacheName) {
            Log.Warningf("GET /views/{cache}: No such cache %s", cacheName)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusNotFound)
            io.WriteString(w, "\n")

            return
        }

        encodedSummary, _ := json.Marshal(viewsEndpoint.summary(cacheName))

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedSummary)+"\n")
    }).Methods("GET")

    // Ask for this node to be included in the next view of the cache
    router.HandleFunc("/views/{cache}/join", func(w http.ResponseWriter, r *http.Request) {
        cacheName := mux.Vars(r)["cache"]

        if err := viewsEndpoint.ViewsFacade.JoinCache(r.Context(), cacheName); err != nil {
            Log.Warningf("POST /views/{cache}/join: %v", err)

            writeError(w, statusFor(err), err)

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("POST")

    router.HandleFunc("/views/{cache}/leave", func(w http.ResponseWriter, r *http.Request) {
        cacheName := mux.Vars(r)["cache"]

        if err := viewsEndpoint.ViewsFacade.LeaveCache(r.Context(), cacheName); err != nil {
            Log.Warningf("POST /views/{cache}/leave: %v", err)

            writeError(w, statusFor(err), err)

            return
        }

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("POST")

    // Views committed or rolled back on this node, oldest first
    router.HandleFunc("/views/{cache}/history", func(w http.ResponseWriter, r *http.Request) {
        cacheName := mux.Vars(r)["cache"]
        entries, err := viewsEndpoint.ViewsFacade.History(cacheName)

        if err != nil {
            Log.Warningf("GET /views/{cache}/history: %v", err)

            w.Header().Set("Content-Type", "application/json; charset=utf8")
            w.WriteHeader(http.StatusInternalServerError)
            io.WriteString(w, "\n")

            return
        }

        encodedEntries, _ := json.Marshal(entries)

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedEntries)+"\n")
    }).Methods("GET")
}

func statusFor(err error) int {
    switch err {
    case views.EStopped, views.ENoCoordinator:
        return http.StatusServiceUnavailable
    default:
        return http.StatusInternalServerError
    }
}

func writeError(w http.ResponseWriter, status int, err error) {
    encodedError, _ := json.Marshal(APIError{Message: err.Error()})

    w.Header().Set("Content-Type", "application/json; charset=utf8")
    w.WriteHeader(status)
    io.WriteString(w, string(encodedError)+"\n")
}
