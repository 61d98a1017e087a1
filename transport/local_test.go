package transport_test

import (
    "context"
    "errors"
    "time"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/transport"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("LocalNetwork", func() {
    var network *LocalNetwork
    var a, b, c *LocalTransport
    var handlerB, handlerC *recordingHandler

    BeforeEach(func() {
        network = NewLocalNetwork()
        a = network.NewTransport("a")
        b = network.NewTransport("b")
        c = network.NewTransport("c")
        handlerB = newRecordingHandler()
        handlerC = newRecordingHandler()
        b.SetHandler(handlerB)
        c.SetHandler(handlerC)
    })

    It("should order members by arrival and make the first one coordinator", func() {
        Expect(a.Members()).Should(Equal([]Address{"a", "b", "c"}))
        Expect(c.Coordinator()).Should(Equal(Address("a")))
        Expect(a.IsCoordinator()).Should(BeTrue())
        Expect(b.IsCoordinator()).Should(BeFalse())
    })

    It("should deliver commands and collect every response", func() {
        command, _ := CreateViewCommand("a", ViewCommitBody{CacheName: "X", ViewID: 1})

        responses, err := a.InvokeRemotely(context.Background(), []Address{"b", "c"}, command, SynchronousResponses, time.Second)

        Expect(err).Should(BeNil())
        Expect(responses).Should(HaveLen(2))
        Expect(responses[Address("b")].Success).Should(BeTrue())
        Expect(handlerB.Received()).Should(HaveLen(1))
        Expect(handlerC.Received()[0].Type).Should(Equal(ViewCommit))
    })

    It("should leave out nodes on the other side of a split", func() {
        recorder := &membershipRecorder{}
        c.OnMembershipChange(recorder.Listener())

        network.Split([]Address{"a", "b"}, []Address{"c"})

        Expect(a.Members()).Should(Equal([]Address{"a", "b"}))
        Expect(c.Members()).Should(Equal([]Address{"c"}))
        Expect(c.IsCoordinator()).Should(BeTrue())
        Expect(recorder.Last().merge).Should(BeFalse())

        command, _ := CreateViewCommand("a", ViewRecoverBody{})
        responses, _ := a.InvokeRemotely(context.Background(), []Address{"b", "c"}, command, SynchronousResponses, time.Second)

        Expect(responses).Should(HaveKey(Address("b")))
        Expect(responses).ShouldNot(HaveKey(Address("c")))

        network.Heal()

        Expect(c.Members()).Should(Equal([]Address{"a", "b", "c"}))
        Expect(recorder.Last().merge).Should(BeTrue())
        Expect(recorder.Last().members).Should(Equal([]Address{"a", "b", "c"}))
    })

    It("should report a crashed node as gone", func() {
        recorder := &membershipRecorder{}
        b.OnMembershipChange(recorder.Listener())

        network.Remove("a")

        Expect(b.Coordinator()).Should(Equal(Address("b")))
        Expect(recorder.Last().members).Should(Equal([]Address{"b", "c"}))
        Expect(recorder.Last().merge).Should(BeFalse())
    })

    It("should drop deliveries rejected by the interceptor", func() {
        network.Intercept(func(from Address, to Address, command ViewCommand) error {
            if to == "c" {
                return errors.New("dropped")
            }

            return nil
        })

        command, _ := CreateViewCommand("a", ViewCommitBody{CacheName: "X", ViewID: 1})
        responses, err := a.InvokeRemotely(context.Background(), []Address{"b", "c"}, command, SynchronousResponses, time.Second)

        Expect(err).Should(BeNil())
        Expect(responses).Should(HaveLen(1))
        Expect(handlerC.Received()).Should(BeEmpty())
    })

    It("should give up on slow targets when the timeout expires", func() {
        network.Intercept(func(from Address, to Address, command ViewCommand) error {
            if to == "c" {
                time.Sleep(200 * time.Millisecond)
            }

            return nil
        })

        command, _ := CreateViewCommand("a", ViewCommitBody{CacheName: "X", ViewID: 1})
        start := time.Now()
        responses, err := a.InvokeRemotely(context.Background(), []Address{"b", "c"}, command, SynchronousResponses, 50*time.Millisecond)

        Expect(err).Should(BeNil())
        Expect(time.Since(start)).Should(BeNumerically("<", 150*time.Millisecond))
        Expect(responses).Should(HaveKey(Address("b")))
        Expect(responses).ShouldNot(HaveKey(Address("c")))
    })
})
