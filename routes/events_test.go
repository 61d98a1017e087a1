package routes_test

import (
    "net/http/httptest"
    "strings"
    "time"

    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/routes"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("Events", func() {
    var server *httptest.Server
    var eventsEndpoint *EventsEndpoint
    var dialer *websocket.Dialer

    BeforeEach(func() {
        router := mux.NewRouter()
        eventsEndpoint = NewEventsEndpoint()
        eventsEndpoint.Attach(router)
        (&ViewsEndpoint{ViewsFacade: NewMockViewsFacade()}).Attach(router)
        server = httptest.NewServer(router)
        dialer = &websocket.Dialer{}
    })

    AfterEach(func() {
        server.Close()
    })

    eventsURL := func() string {
        return "ws" + strings.TrimPrefix(server.URL, "http") + "/views/events"
    }

    Describe("/views/events", func() {
        It("Should stream published deltas to a connected client", func() {
            conn, _, err := dialer.Dial(eventsURL(), nil)

            Expect(err).Should(BeNil())

            defer conn.Close()

            Eventually(eventsEndpoint.Subscribers).Should(Equal(1))

            eventsEndpoint.Publish(ViewDelta{Type: DeltaViewCommitted, CacheName: "X", View: NewView(2, []Address{"n1", "n2"})})
            eventsEndpoint.Publish(ViewDelta{Type: DeltaViewRolledBack, CacheName: "X", View: NewView(3, []Address{"n1"})})

            var delta ViewDelta

            conn.SetReadDeadline(time.Now().Add(5 * time.Second))
            Expect(conn.ReadJSON(&delta)).Should(BeNil())
            Expect(delta.Type).Should(Equal(DeltaViewCommitted))
            Expect(delta.CacheName).Should(Equal("X"))
            Expect(delta.View.Equal(NewView(2, []Address{"n1", "n2"}))).Should(BeTrue())

            Expect(conn.ReadJSON(&delta)).Should(BeNil())
            Expect(delta.Type).Should(Equal(DeltaViewRolledBack))
            Expect(delta.View.ID()).Should(Equal(3))
        })

        It("Should forget clients that disconnect", func() {
            conn, _, err := dialer.Dial(eventsURL(), nil)

            Expect(err).Should(BeNil())
            Eventually(eventsEndpoint.Subscribers).Should(Equal(1))

            conn.Close()

            Eventually(eventsEndpoint.Subscribers).Should(Equal(0))
        })

        It("Should not block when a client stops reading", func() {
            conn, _, err := dialer.Dial(eventsURL(), nil)

            Expect(err).Should(BeNil())

            defer conn.Close()

            Eventually(eventsEndpoint.Subscribers).Should(Equal(1))

            published := make(chan struct{})

            go func() {
                for i := 0; i < 1000; i++ {
                    eventsEndpoint.Publish(ViewDelta{Type: DeltaViewPrepared, CacheName: "X", View: NewView(i, []Address{"n1"})})
                }

                close(published)
            }()

            Eventually(published, "5s").Should(BeClosed())
        })

        It("Should reject plain HTTP requests", func() {
            resp, err := server.Client().Get(server.URL + "/views/events")

            Expect(err).Should(BeNil())
            resp.Body.Close()
            Expect(resp.StatusCode).Should(Equal(400))
        })
    })
})
