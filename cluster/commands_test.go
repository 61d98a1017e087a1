package cluster_test

import (
    . "github.com/PelionIoT/cacheviews/cluster"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("ViewCommand", func() {
    It("should set the command type from the body type", func() {
        command, err := CreateViewCommand("a", ViewRollbackBody{CacheName: "X", NewViewID: 7, CommittedViewID: 5})

        Expect(err).Should(BeNil())
        Expect(command.Type).Should(Equal(ViewRollback))
        Expect(command.Sender).Should(Equal(Address("a")))
    })

    It("should reject bodies that are not view commands", func() {
        _, err := CreateViewCommand("a", "hello")

        Expect(err).Should(Equal(ENoSuchCommand))
    })

    It("should carry both views of a prepare across the wire", func() {
        command, _ := CreateViewCommand("a", ViewPrepareBody{
            CacheName:     "X",
            PendingView:   NewView(3, []Address{"a", "b"}),
            CommittedView: NewView(2, []Address{"a"}),
        })

        encoded, err := EncodeViewCommand(command)
        Expect(err).Should(BeNil())

        decoded, err := DecodeViewCommand(encoded)
        Expect(err).Should(BeNil())

        body, err := DecodeViewCommandBody(decoded)
        Expect(err).Should(BeNil())

        prepare := body.(ViewPrepareBody)
        Expect(prepare.CacheName).Should(Equal("X"))
        Expect(prepare.PendingView.Equal(NewView(3, []Address{"a", "b"}))).Should(BeTrue())
        Expect(prepare.CommittedView.Equal(NewView(2, []Address{"a"}))).Should(BeTrue())
    })

    It("should report malformed commands", func() {
        _, err := DecodeViewCommand([]byte("{"))
        Expect(err).Should(Equal(ECouldNotParseCommand))

        _, err = DecodeViewCommandBody(ViewCommand{Type: ViewCommit, Data: []byte("[")})
        Expect(err).Should(Equal(ECouldNotParseCommand))

        _, err = DecodeViewCommandBody(ViewCommand{Type: ViewCommandType(42)})
        Expect(err).Should(Equal(ENoSuchCommand))
    })
})
