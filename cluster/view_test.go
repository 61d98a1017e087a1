package cluster_test

import (
    "encoding/json"

    . "github.com/PelionIoT/cacheviews/cluster"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("View", func() {
    Describe("#NewView", func() {
        It("should drop duplicate members and keep the order of first appearance", func() {
            view := NewView(3, []Address{"b", "a", "b", "c", "a"})

            Expect(view.ID()).Should(Equal(3))
            Expect(view.Members()).Should(Equal([]Address{"b", "a", "c"}))
        })

        It("should not be affected by later changes to the slice it was built from", func() {
            members := []Address{"a", "b"}
            view := NewView(1, members)
            members[0] = "z"

            Expect(view.Members()).Should(Equal([]Address{"a", "b"}))

            returned := view.Members()
            returned[1] = "y"

            Expect(view.Members()).Should(Equal([]Address{"a", "b"}))
        })
    })

    Describe("EmptyView", func() {
        It("should have id -1 and no members", func() {
            Expect(EmptyView.ID()).Should(Equal(-1))
            Expect(EmptyView.IsEmpty()).Should(BeTrue())
            Expect(EmptyView.Members()).Should(BeEmpty())
        })
    })

    Describe("#Equal", func() {
        It("should ignore member order", func() {
            Expect(NewView(4, []Address{"a", "b"}).Equal(NewView(4, []Address{"b", "a"}))).Should(BeTrue())
            Expect(NewView(4, []Address{"a", "b"}).Equal(NewView(5, []Address{"a", "b"}))).Should(BeFalse())
            Expect(NewView(4, []Address{"a", "b"}).Equal(NewView(4, []Address{"a"}))).Should(BeFalse())
        })
    })

    Describe("JSON encoding", func() {
        It("should decode back into an equal view with duplicates removed", func() {
            var view View

            Expect(json.Unmarshal([]byte(`{"viewId":7,"members":["a","b","a"]}`), &view)).Should(Succeed())
            Expect(view.Equal(NewView(7, []Address{"a", "b"}))).Should(BeTrue())
            Expect(view.Size()).Should(Equal(2))
        })

        It("should encode the empty view with an empty member list", func() {
            encoded, err := json.Marshal(EmptyView)

            Expect(err).Should(BeNil())
            Expect(string(encoded)).Should(Equal(`{"viewId":-1,"members":[]}`))
        })
    })
})
