package routes_test

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"

    "github.com/gorilla/mux"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/routes"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("Cluster", func() {
    var router *mux.Router
    var viewsFacade *MockViewsFacade

    BeforeEach(func() {
        viewsFacade = NewMockViewsFacade()
        router = mux.NewRouter()
        (&ClusterEndpoint{ViewsFacade: viewsFacade}).Attach(router)
    })

    Describe("/cluster", func() {
        Describe("GET", func() {
            It("Should respond with the local node, the coordinator and the members", func() {
                viewsFacade.localNodeID = "n2"
                viewsFacade.coordinator = "n1"
                viewsFacade.members = []Address{"n1", "n2", "n3"}

                req, err := http.NewRequest("GET", "/cluster", nil)

                Expect(err).Should(BeNil())

                rr := httptest.NewRecorder()
                router.ServeHTTP(rr, req)

                Expect(rr.Code).Should(Equal(http.StatusOK))

                var overview ClusterOverview

                Expect(json.Unmarshal(rr.Body.Bytes(), &overview)).Should(BeNil())
                Expect(overview).Should(Equal(ClusterOverview{NodeID: "n2", Coordinator: "n1", Members: []Address{"n1", "n2", "n3"}}))
            })
        })
    })

    Describe("/healthz", func() {
        Describe("GET", func() {
            It("Should respond with status code http.StatusOK", func() {
                req, err := http.NewRequest("GET", "/healthz", nil)

                Expect(err).Should(BeNil())

                rr := httptest.NewRecorder()
                router.ServeHTTP(rr, req)

                Expect(rr.Code).Should(Equal(http.StatusOK))
            })
        })
    })
})
