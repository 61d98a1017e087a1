package shared_test

import (
    "io/ioutil"
    "os"
    "path/filepath"
    "time"

    . "github.com/PelionIoT/cacheviews/shared"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("YAMLServerConfig", func() {
    It("should fill in defaults", func() {
        var config YAMLServerConfig

        Expect(config.Load([]byte("nodeID: node-1\nport: 9090\n"))).Should(BeNil())
        Expect(config.NodeID).Should(Equal("node-1"))
        Expect(config.Host).Should(Equal("localhost"))
        Expect(config.ViewTimeoutDuration()).Should(Equal(10 * time.Second))
        Expect(config.CooldownDuration()).Should(Equal(time.Second))
        Expect(config.ProbeIntervalDuration()).Should(Equal(time.Second))
        Expect(config.InstallWorkers).Should(Equal(DefaultInstallWorkers))
        Expect(config.LogLevel).Should(Equal("info"))
    })

    It("should generate a node ID when none is given", func() {
        var config YAMLServerConfig

        Expect(config.Load([]byte("port: 9090\n"))).Should(BeNil())
        Expect(config.NodeID).ShouldNot(BeEmpty())
    })

    It("should parse peers, caches and etcd settings", func() {
        var config YAMLServerConfig

        err := config.Load([]byte(`
nodeID: a
port: 9090
caches:
    - users
    - sessions
etcd:
    endpoints:
        - 127.0.0.1:2379
viewTimeout: 500
`))

        Expect(err).Should(BeNil())
        Expect(config.Caches).Should(Equal([]string{"users", "sessions"}))
        Expect(config.Etcd.Prefix).Should(Equal(DefaultEtcdPrefix))
        Expect(config.Etcd.TTL).Should(Equal(int64(DefaultEtcdTTL)))
        Expect(config.ViewTimeoutDuration()).Should(Equal(500 * time.Millisecond))
    })

    It("should reject invalid ports", func() {
        var config YAMLServerConfig

        Expect(config.Load([]byte("port: 70000\n"))).ShouldNot(BeNil())
    })

    It("should reject peers without a host", func() {
        var config YAMLServerConfig

        Expect(config.Load([]byte("port: 9090\npeers:\n    - id: b\n      port: 9191\n"))).ShouldNot(BeNil())
    })

    It("should reject duplicate peers", func() {
        var config YAMLServerConfig

        err := config.Load([]byte(`
nodeID: a
port: 9090
peers:
    - id: b
      host: localhost
      port: 9191
    - id: b
      host: localhost
      port: 9292
`))

        Expect(err).ShouldNot(BeNil())
    })

    It("should reject using peers and etcd together", func() {
        var config YAMLServerConfig

        err := config.Load([]byte(`
port: 9090
peers:
    - id: b
      host: localhost
      port: 9191
etcd:
    endpoints:
        - 127.0.0.1:2379
`))

        Expect(err).ShouldNot(BeNil())
    })

    It("should reject unknown log levels", func() {
        var config YAMLServerConfig

        Expect(config.Load([]byte("port: 9090\nlogLevel: chatty\n"))).ShouldNot(BeNil())
    })

    It("should resolve the history directory relative to the config file", func() {
        dir, err := ioutil.TempDir("", "cacheviews-config")

        Expect(err).Should(BeNil())

        defer os.RemoveAll(dir)

        file := filepath.Join(dir, "config.yaml")

        Expect(ioutil.WriteFile(file, []byte("port: 9090\nlogLevel: error\nhistory:\n    dir: history\n"), 0644)).Should(BeNil())

        var config YAMLServerConfig

        Expect(config.LoadFromFile(file)).Should(BeNil())
        Expect(config.History.Dir).Should(Equal(filepath.Join(dir, "history")))
    })
})
