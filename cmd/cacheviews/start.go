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
    "os"
    "os/signal"
    "syscall"

    . "github.com/PelionIoT/cacheviews/logging"
    "github.com/PelionIoT/cacheviews/server"
    . "github.com/PelionIoT/cacheviews/shared"
)

func init() {
    registerCommand("start", startServer, startUsage)
}

var startUsage string = `start -conf=[config file]
`

func startServer() {
    var sc YAMLServerConfig

    if err := sc.LoadFromFile(*optConfigFile); err != nil {
        fmt.Fprintf(os.Stderr, "Unable to load config file: %s\n", err.Error())

        os.Exit(1)
    }

    s, err := server.NewServer(server.NewServerConfig(&sc))

    if err != nil {
        fmt.Fprintf(os.Stderr, "Unable to create server: %s\n", err.Error())

        os.Exit(1)
    }

    signals := make(chan os.Signal, 1)
    signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

    go func() {
        sig := <-signals

        Log.Infof("Received %v. Shutting down", sig)

        s.Stop()
    }()

    s.Start()
}
