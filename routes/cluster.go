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
)

type ClusterEndpoint struct {
    ViewsFacade ViewsFacade
}

func (clusterEndpoint *ClusterEndpoint) Attach(router *mux.Router) {
    router.HandleFunc("/cluster", func(w http.ResponseWriter, r *http.Request) {
        encodedOverview, _ := json.Marshal(ClusterOverview{
            NodeID:      clusterEndpoint.ViewsFacade.LocalNodeID(),
            Coordinator: clusterEndpoint.ViewsFacade.Coordinator(),
            Members:     clusterEndpoint.ViewsFacade.Members(),
        })

        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, string(encodedOverview)+"\n")
    }).Methods("GET")

    // Liveness probe used by static membership
    router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/json; charset=utf8")
        w.WriteHeader(http.StatusOK)
        io.WriteString(w, "\n")
    }).Methods("GET")
}
