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
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

const subscriberBufferSize = 64

// EventsEndpoint streams the view changes applied on this node to websocket
// clients. A client that cannot keep up misses events rather than slowing
// down the views manager.
type EventsEndpoint struct {
    Upgrader    websocket.Upgrader
    subscribers map[chan ViewDelta]bool
    lock        sync.Mutex
}

func NewEventsEndpoint() *EventsEndpoint {
    return &EventsEndpoint{
        Upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
        },
        subscribers: make(map[chan ViewDelta]bool),
    }
}

// Publish hands delta to every connected client
func (eventsEndpoint *EventsEndpoint) Publish(delta ViewDelta) {
    eventsEndpoint.lock.Lock()
    defer eventsEndpoint.lock.Unlock()

    for subscriber := range eventsEndpoint.subscribers {
        select {
        case subscriber <- delta:
        default:
            Log.Warningf("Dropping %v event for cache %s since a subscriber is not keeping up", delta.Type, delta.CacheName)
        }
    }
}

func (eventsEndpoint *EventsEndpoint) subscribe() chan ViewDelta {
    eventsEndpoint.lock.Lock()
    defer eventsEndpoint.lock.Unlock()

    subscriber := make(chan ViewDelta, subscriberBufferSize)
    eventsEndpoint.subscribers[subscriber] = true

    return subscriber
}

func (eventsEndpoint *EventsEndpoint) unsubscribe(subscriber chan ViewDelta) {
    eventsEndpoint.lock.Lock()
    defer eventsEndpoint.lock.Unlock()

    delete(eventsEndpoint.subscribers, subscriber)
}

func (eventsEndpoint *EventsEndpoint) Subscribers() int {
    eventsEndpoint.lock.Lock()
    defer eventsEndpoint.lock.Unlock()

    return len(eventsEndpoint.subscribers)
}

// Attach must be called before ViewsEndpoint.Attach on the same router so that
// the stream is not mistaken for a cache named events
func (eventsEndpoint *EventsEndpoint) Attach(router *mux.Router) {
    router.HandleFunc("/views/events", func(w http.ResponseWriter, r *http.Request) {
        conn, err := eventsEndpoint.Upgrader.Upgrade(w, r, nil)

        if err != nil {
            Log.Warningf("GET /views/events: Unable to upgrade connection: %v", err)

            return
        }

        subscriber := eventsEndpoint.subscribe()
        closed := make(chan struct{})

        defer eventsEndpoint.unsubscribe(subscriber)
        defer conn.Close()

        // clients never send anything. Reading detects when they go away
        go func() {
            defer close(closed)

            for {
                if _, _, err := conn.ReadMessage(); err != nil {
                    return
                }
            }
        }()

        for {
            select {
            case delta := <-subscriber:
                conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

                if err := conn.WriteJSON(delta); err != nil {
                    Log.Warningf("GET /views/events: Unable to write event: %v", err)

                    return
                }
            case <-closed:
                return
            }
        }
    }).Methods("GET")
}
