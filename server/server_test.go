package server_test

import (
    "encoding/json"
    "fmt"
    "io/ioutil"
    "net/http"
    "os"
    "path/filepath"
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
    "github.com/PelionIoT/cacheviews/historian"
    "github.com/PelionIoT/cacheviews/routes"
    . "github.com/PelionIoT/cacheviews/server"
    "github.com/PelionIoT/cacheviews/shared"
    "github.com/PelionIoT/cacheviews/transport"
    "github.com/PelionIoT/cacheviews/util"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

func startServer(config ServerConfig) *Server {
    server, err := NewServer(config)

    Expect(err).Should(BeNil())

    go server.Start()

    return server
}

func getJSON(url string, result interface{}) func() error {
    return func() error {
        resp, err := http.Get(url)

        if err != nil {
            return err
        }

        defer resp.Body.Close()

        if resp.StatusCode != http.StatusOK {
            return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
        }

        body, err := ioutil.ReadAll(resp.Body)

        if err != nil {
            return err
        }

        return json.Unmarshal(body, result)
    }
}

var _ = Describe("Server", func() {
    Describe("NewServerConfig", func() {
        It("should carry over every setting of a YAML config", func() {
            var ysc shared.YAMLServerConfig

            Expect(ysc.Load([]byte(`
nodeID: n1
port: 9090
peers:
  - id: n1
    host: localhost
    port: 9090
  - id: n2
    host: 10.0.0.2
    port: 9091
caches: [ "users", "sessions" ]
viewTimeout: 2000
cooldown: 50
installWorkers: 3
history:
  dir: /var/lib/cacheviews
  entryLimit: 100
maxConnections: 12
`))).Should(BeNil())

            serverConfig := NewServerConfig(&ysc)

            Expect(serverConfig.NodeID).Should(Equal(Address("n1")))
            Expect(serverConfig.Port).Should(Equal(9090))
            Expect(serverConfig.Peers).Should(Equal([]transport.PeerAddress{
                {NodeID: "n1", Host: "localhost", Port: 9090},
                {NodeID: "n2", Host: "10.0.0.2", Port: 9091},
            }))
            Expect(serverConfig.EtcdEndpoints).Should(BeEmpty())
            Expect(serverConfig.Caches).Should(Equal([]string{"users", "sessions"}))
            Expect(serverConfig.ViewTimeout).Should(Equal(2 * time.Second))
            Expect(serverConfig.Cooldown).Should(Equal(50 * time.Millisecond))
            Expect(serverConfig.InstallWorkers).Should(Equal(3))
            Expect(serverConfig.HistoryDir).Should(Equal("/var/lib/cacheviews"))
            Expect(serverConfig.HistoryEntryLimit).Should(Equal(uint64(100)))
            Expect(serverConfig.MaxConnections).Should(Equal(12))
        })
    })

    Context("with a single node", func() {
        var server *Server
        var baseURL string
        var historyDir string

        BeforeEach(func() {
            historyDir = filepath.Join(os.TempDir(), "cacheviews-history-"+util.NewNodeID())
            server = startServer(ServerConfig{
                NodeID:        "n1",
                Port:          0,
                Caches:        []string{"users"},
                ViewTimeout:   time.Second,
                Cooldown:      10 * time.Millisecond,
                ProbeInterval: 50 * time.Millisecond,
                HistoryDir:    historyDir,
            })
            baseURL = fmt.Sprintf("http://localhost:%d", server.Port())
        })

        AfterEach(func() {
            server.Stop()
            os.RemoveAll(historyDir)
        })

        It("should join configured caches at startup", func() {
            var summary routes.CacheViewSummary

            Eventually(getJSON(baseURL+"/views/users", &summary), "5s").Should(Succeed())
            Eventually(func() int {
                getJSON(baseURL+"/views/users", &summary)()

                return summary.CommittedView.ID()
            }, "5s").Should(Equal(1))
            Expect(summary.CommittedView.Members()).Should(Equal([]Address{"n1"}))
            Expect(summary.Member).Should(BeTrue())
        })

        It("should join and leave caches through the admin API and record their history", func() {
            Eventually(getJSON(baseURL+"/cluster", &routes.ClusterOverview{}), "5s").Should(Succeed())

            resp, err := http.Post(baseURL+"/views/sessions/join", "application/json", nil)

            Expect(err).Should(BeNil())
            resp.Body.Close()
            Expect(resp.StatusCode).Should(Equal(http.StatusOK))

            Eventually(func() []Address {
                return server.CommittedView("sessions").Members()
            }, "5s").Should(Equal([]Address{"n1"}))

            resp, err = http.Post(baseURL+"/views/sessions/leave", "application/json", nil)

            Expect(err).Should(BeNil())
            resp.Body.Close()
            Expect(resp.StatusCode).Should(Equal(http.StatusOK))

            Eventually(func() []Address {
                return server.CommittedView("sessions").Members()
            }, "5s").Should(BeEmpty())

            var entries []historian.HistoryEntry

            Eventually(func() int {
                getJSON(baseURL+"/views/sessions/history", &entries)()

                return len(entries)
            }, "5s").Should(Equal(2))
            Expect(entries[0].Kind).Should(Equal(historian.KindCommit))
            Expect(entries[0].View.Members()).Should(Equal([]Address{"n1"}))
            Expect(entries[1].View.Members()).Should(BeEmpty())
        })

        It("should describe the cluster and expose metrics", func() {
            var overview routes.ClusterOverview

            Eventually(getJSON(baseURL+"/cluster", &overview), "5s").Should(Succeed())
            Expect(overview).Should(Equal(routes.ClusterOverview{NodeID: "n1", Coordinator: "n1", Members: []Address{"n1"}}))

            Eventually(func() int {
                return server.CommittedView("users").ID()
            }, "5s").Should(Equal(1))

            resp, err := http.Get(baseURL + "/metrics")

            Expect(err).Should(BeNil())

            defer resp.Body.Close()

            body, err := ioutil.ReadAll(resp.Body)

            Expect(err).Should(BeNil())
            Expect(string(body)).Should(ContainSubstring(`cacheviews_committed_view_id{cache="users"} 1`))
        })
    })

    Context("with two nodes started at the same time", func() {
        var servers []*Server

        BeforeEach(func() {
            peers := []transport.PeerAddress{
                {NodeID: "n1", Host: "localhost", Port: 19101},
                {NodeID: "n2", Host: "localhost", Port: 19102},
            }

            servers = []*Server{}

            for _, peer := range peers {
                servers = append(servers, startServer(ServerConfig{
                    NodeID:        peer.NodeID,
                    Host:          peer.Host,
                    Port:          peer.Port,
                    Peers:         peers,
                    Caches:        []string{"users"},
                    ViewTimeout:   time.Second,
                    Cooldown:      10 * time.Millisecond,
                    ProbeInterval: 50 * time.Millisecond,
                }))
            }
        })

        AfterEach(func() {
            for _, server := range servers {
                server.Stop()
            }
        })

        It("should agree on a single view holding both nodes", func() {
            agreed := func() bool {
                v1 := servers[0].CommittedView("users")
                v2 := servers[1].CommittedView("users")

                return v1.Equal(v2) && SameMembers(v1.Members(), []Address{"n1", "n2"})
            }

            Eventually(agreed, "10s").Should(BeTrue())
            Expect(servers[0].Coordinator()).Should(Equal(Address("n1")))
            Expect(servers[1].Coordinator()).Should(Equal(Address("n1")))
        })
    })
})
