package transport_test

import (
    "context"
    "net"
    "net/http/httptest"
    "net/url"
    "strconv"
    "time"

    "github.com/gorilla/mux"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/transport"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

func peerAddressOf(nodeID Address, server *httptest.Server) PeerAddress {
    u, _ := url.Parse(server.URL)
    host, port, _ := net.SplitHostPort(u.Host)
    portNumber, _ := strconv.Atoi(port)

    return PeerAddress{NodeID: nodeID, Host: host, Port: portNumber}
}

var _ = Describe("HTTPTransport", func() {
    var receiver *HTTPTransport
    var sender *HTTPTransport
    var handler *recordingHandler
    var server *httptest.Server

    BeforeEach(func() {
        router := mux.NewRouter()
        server = httptest.NewServer(router)
        receiver = NewHTTPTransport(peerAddressOf("receiver", server))
        receiver.Attach(router)
        handler = newRecordingHandler()
        receiver.SetHandler(handler)
        sender = NewHTTPTransport(PeerAddress{NodeID: "sender", Host: "127.0.0.1", Port: 1})
    })

    AfterEach(func() {
        server.Close()
    })

    It("should treat the first member as coordinator", func() {
        sender.SetMembers([]PeerAddress{{NodeID: "sender"}, peerAddressOf("receiver", server)})

        Expect(sender.Members()).Should(Equal([]Address{"sender", "receiver"}))
        Expect(sender.IsCoordinator()).Should(BeTrue())
        Expect(sender.PeerAddress("receiver").IsEmpty()).Should(BeFalse())
    })

    It("should deliver a command and decode the response", func() {
        receiver.AddPeer(PeerAddress{NodeID: "sender", Host: "127.0.0.1", Port: 1})
        sender.AddPeer(peerAddressOf("receiver", server))
        handler.response = ViewCommandResponse{Success: true, Views: map[string]View{"X": NewView(2, []Address{"receiver"})}}

        command, _ := CreateViewCommand("sender", ViewRecoverBody{})
        responses, err := sender.InvokeRemotely(context.Background(), []Address{"receiver"}, command, SynchronousResponses, time.Second)

        Expect(err).Should(BeNil())
        Expect(responses).Should(HaveKey(Address("receiver")))
        Expect(responses[Address("receiver")].Views["X"].Equal(NewView(2, []Address{"receiver"}))).Should(BeTrue())
        Expect(handler.Received()[0].Type).Should(Equal(ViewRecover))
    })

    It("should refuse commands from unknown senders", func() {
        sender.AddPeer(peerAddressOf("receiver", server))

        command, _ := CreateViewCommand("sender", ViewRecoverBody{})
        responses, err := sender.InvokeRemotely(context.Background(), []Address{"receiver"}, command, SynchronousResponses, time.Second)

        Expect(err).Should(BeNil())
        Expect(responses).Should(BeEmpty())
        Expect(handler.Received()).Should(BeEmpty())
    })

    It("should not return responses for targets it has no address for", func() {
        command, _ := CreateViewCommand("sender", ViewRecoverBody{})
        responses, err := sender.InvokeRemotely(context.Background(), []Address{"nobody"}, command, SynchronousResponses, time.Second)

        Expect(err).Should(BeNil())
        Expect(responses).Should(BeEmpty())
    })
})
