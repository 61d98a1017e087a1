package client_test

import (
    "context"
    "net/http"
    "strings"

    . "github.com/PelionIoT/cacheviews/client"
    . "github.com/PelionIoT/cacheviews/cluster"
    "github.com/PelionIoT/cacheviews/historian"
    "github.com/PelionIoT/cacheviews/routes"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
    "github.com/onsi/gomega/ghttp"
)

var _ = Describe("APIClient", func() {
    var server *ghttp.Server
    var client *APIClient
    ctx := context.Background()

    BeforeEach(func() {
        server = ghttp.NewServer()
        client = New(APIClientConfig{
            Servers: []string{strings.TrimPrefix(server.URL(), "http://")},
        })
    })

    AfterEach(func() {
        server.Close()
    })

    Describe("#Views", func() {
        It("should decode the summaries returned by GET /views", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("GET", "/views"),
                ghttp.RespondWithJSONEncoded(http.StatusOK, []routes.CacheViewSummary{
                    {CacheName: "users", CommittedView: NewView(2, []Address{"n1", "n2"}), Member: true},
                }),
            ))

            summaries, err := client.Views(ctx)

            Expect(err).Should(BeNil())
            Expect(len(summaries)).Should(Equal(1))
            Expect(summaries[0].CacheName).Should(Equal("users"))
            Expect(summaries[0].CommittedView.Equal(NewView(2, []Address{"n1", "n2"}))).Should(BeTrue())
            Expect(summaries[0].Member).Should(BeTrue())
        })
    })

    Describe("#View", func() {
        It("should return an ErrorStatusCode when the cache is unknown", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("GET", "/views/users"),
                ghttp.RespondWith(http.StatusNotFound, "\n"),
            ))

            _, err := client.View(ctx, "users")

            Expect(err).Should(BeAssignableToTypeOf(&ErrorStatusCode{}))
            Expect(err.(*ErrorStatusCode).StatusCode).Should(Equal(http.StatusNotFound))
        })
    })

    Describe("#Join", func() {
        It("should send POST /views/{cache}/join", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("POST", "/views/users/join"),
                ghttp.RespondWith(http.StatusOK, "\n"),
            ))

            Expect(client.Join(ctx, "users")).Should(BeNil())
            Expect(server.ReceivedRequests()).Should(HaveLen(1))
        })

        It("should report the error message of a failed join", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("POST", "/views/users/join"),
                ghttp.RespondWith(http.StatusServiceUnavailable, `{"message":"stopped"}`),
            ))

            err := client.Join(ctx, "users")

            Expect(err).Should(Equal(&ErrorStatusCode{StatusCode: http.StatusServiceUnavailable, Message: `{"message":"stopped"}`}))
        })
    })

    Describe("#Leave", func() {
        It("should send POST /views/{cache}/leave", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("POST", "/views/users/leave"),
                ghttp.RespondWith(http.StatusOK, "\n"),
            ))

            Expect(client.Leave(ctx, "users")).Should(BeNil())
        })
    })

    Describe("#History", func() {
        It("should decode the entries returned by GET /views/{cache}/history", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("GET", "/views/users/history"),
                ghttp.RespondWithJSONEncoded(http.StatusOK, []historian.HistoryEntry{
                    {CacheName: "users", View: NewView(1, []Address{"n1"}), Kind: historian.KindCommit, Timestamp: 5, Serial: 1},
                }),
            ))

            entries, err := client.History(ctx, "users")

            Expect(err).Should(BeNil())
            Expect(len(entries)).Should(Equal(1))
            Expect(entries[0].Kind).Should(Equal(historian.KindCommit))
            Expect(entries[0].View.ID()).Should(Equal(1))
        })
    })

    Describe("#Cluster", func() {
        It("should decode GET /cluster", func() {
            server.AppendHandlers(ghttp.CombineHandlers(
                ghttp.VerifyRequest("GET", "/cluster"),
                ghttp.RespondWithJSONEncoded(http.StatusOK, routes.ClusterOverview{NodeID: "n2", Coordinator: "n1", Members: []Address{"n1", "n2"}}),
            ))

            overview, err := client.Cluster(ctx)

            Expect(err).Should(BeNil())
            Expect(overview.Coordinator).Should(Equal(Address("n1")))
        })
    })

    It("should rotate between servers", func() {
        other := ghttp.NewServer()
        defer other.Close()

        client = New(APIClientConfig{
            Servers: []string{
                strings.TrimPrefix(server.URL(), "http://"),
                strings.TrimPrefix(other.URL(), "http://"),
            },
        })

        server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "\n"))
        other.AppendHandlers(ghttp.RespondWith(http.StatusOK, "\n"))

        Expect(client.Join(ctx, "a")).Should(BeNil())
        Expect(client.Join(ctx, "b")).Should(BeNil())
        Expect(server.ReceivedRequests()).Should(HaveLen(1))
        Expect(other.ReceivedRequests()).Should(HaveLen(1))
    })

    It("should fail without any servers", func() {
        Expect(New(APIClientConfig{}).Join(ctx, "a")).Should(Equal(ENoServers))
    })
})
