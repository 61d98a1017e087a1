package telemetry_test

import (
    "io/ioutil"
    "net/http"
    "net/http/httptest"

    "github.com/prometheus/client_golang/prometheus/testutil"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/telemetry"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("Metrics", func() {
    Describe("RecordDelta", func() {
        It("should track the committed view of a cache", func() {
            RecordDelta(ViewDelta{Type: DeltaViewCommitted, CacheName: "metrics-a", View: NewView(4, []Address{"n1", "n2", "n3"})})

            Expect(testutil.ToFloat64(CommittedViewID.WithLabelValues("metrics-a"))).Should(Equal(4.0))
            Expect(testutil.ToFloat64(CommittedViewSize.WithLabelValues("metrics-a"))).Should(Equal(3.0))

            RecordDelta(ViewDelta{Type: DeltaViewRolledBack, CacheName: "metrics-a", View: NewView(6, []Address{"n1"})})

            Expect(testutil.ToFloat64(CommittedViewID.WithLabelValues("metrics-a"))).Should(Equal(6.0))
            Expect(testutil.ToFloat64(CommittedViewSize.WithLabelValues("metrics-a"))).Should(Equal(1.0))
        })

        It("should ignore prepared views", func() {
            RecordDelta(ViewDelta{Type: DeltaViewCommitted, CacheName: "metrics-b", View: NewView(1, []Address{"n1"})})
            RecordDelta(ViewDelta{Type: DeltaViewPrepared, CacheName: "metrics-b", View: NewView(2, []Address{"n1", "n2"})})

            Expect(testutil.ToFloat64(CommittedViewID.WithLabelValues("metrics-b"))).Should(Equal(1.0))
        })
    })

    Describe("Instrument", func() {
        It("should count requests by status class", func() {
            handler := Instrument("test-op", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
                if r.URL.Path == "/missing" {
                    w.WriteHeader(http.StatusNotFound)

                    return
                }

                w.Write([]byte("ok"))
            }))

            for _, path := range []string{"/a", "/b", "/missing"} {
                req, err := http.NewRequest("GET", path, nil)

                Expect(err).Should(BeNil())

                handler.ServeHTTP(httptest.NewRecorder(), req)
            }

            Expect(testutil.ToFloat64(RequestsTotal.WithLabelValues("test-op", "2xx"))).Should(Equal(2.0))
            Expect(testutil.ToFloat64(RequestsTotal.WithLabelValues("test-op", "4xx"))).Should(Equal(1.0))
        })
    })

    Describe("MetricsHandler", func() {
        It("should expose the registry in the text format", func() {
            RecordDelta(ViewDelta{Type: DeltaViewCommitted, CacheName: "metrics-c", View: NewView(9, []Address{"n1"})})

            server := httptest.NewServer(MetricsHandler())
            defer server.Close()

            resp, err := http.Get(server.URL)

            Expect(err).Should(BeNil())

            defer resp.Body.Close()

            body, err := ioutil.ReadAll(resp.Body)

            Expect(err).Should(BeNil())
            Expect(string(body)).Should(ContainSubstring(`cacheviews_committed_view_id{cache="metrics-c"} 9`))
            Expect(string(body)).Should(ContainSubstring("cacheviews_uptime_seconds"))
        })
    })
})
