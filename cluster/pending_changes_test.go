package cluster_test

import (
    . "github.com/PelionIoT/cacheviews/cluster"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

var _ = Describe("PendingChanges", func() {
    var pendingChanges *PendingChanges

    BeforeEach(func() {
        pendingChanges = NewPendingChanges("X")
    })

    Describe("#CreatePendingView", func() {
        It("should return nil when nothing has changed", func() {
            Expect(pendingChanges.CreatePendingView(EmptyView)).Should(BeNil())
        })

        It("should propose the committed members plus joiners minus leavers with the next view id", func() {
            committed := NewView(4, []Address{"a", "b", "c"})
            pendingChanges.ObserveViewID(4)
            pendingChanges.RequestJoin("d")
            pendingChanges.RequestLeave("b")

            pendingView := pendingChanges.CreatePendingView(committed)

            Expect(pendingView).ShouldNot(BeNil())
            Expect(pendingView.ID()).Should(Equal(5))
            Expect(pendingView.Members()).Should(Equal([]Address{"a", "c", "d"}))
        })

        It("should propose view 1 for the first join of a cache", func() {
            pendingChanges.RequestJoin("n")

            pendingView := pendingChanges.CreatePendingView(EmptyView)

            Expect(pendingView).ShouldNot(BeNil())
            Expect(pendingView.Equal(NewView(1, []Address{"n"}))).Should(BeTrue())
        })

        It("should exclude a node that is both a pending joiner and a pending leaver", func() {
            committed := NewView(1, []Address{"a"})
            pendingChanges.ObserveViewID(1)
            pendingChanges.RequestJoin("b")
            pendingChanges.RequestJoin("c")
            pendingChanges.RequestLeave("b")

            pendingView := pendingChanges.CreatePendingView(committed)

            Expect(pendingView).ShouldNot(BeNil())
            Expect(pendingView.Contains("b")).Should(BeFalse())
            Expect(pendingView.Members()).Should(Equal([]Address{"a", "c"}))
        })

        It("should include a node that left and then asked to join again", func() {
            committed := NewView(1, []Address{"a", "b"})
            pendingChanges.ObserveViewID(1)
            pendingChanges.RequestLeave("b")
            pendingChanges.RequestJoin("b")

            pendingView := pendingChanges.CreatePendingView(committed)

            Expect(pendingView).ShouldNot(BeNil())
            Expect(pendingView.Contains("b")).Should(BeTrue())
        })

        It("should start from the members recorded after a coordinator change", func() {
            committed := NewView(6, []Address{"a", "b"})
            pendingChanges.ObserveViewID(7)
            pendingChanges.SetMembersAfterCoordinatorChange([]Address{"a", "b", "c"})

            pendingView := pendingChanges.CreatePendingView(committed)

            Expect(pendingView).ShouldNot(BeNil())
            Expect(pendingView.ID()).Should(Equal(8))
            Expect(pendingView.Members()).Should(Equal([]Address{"a", "b", "c"}))
        })

        It("should not propose anything when the only leavers are not members", func() {
            committed := NewView(2, []Address{"a"})
            pendingChanges.RequestLeave("z")

            Expect(pendingChanges.CreatePendingView(committed)).Should(BeNil())
            Expect(pendingChanges.InstallationInProgress()).Should(BeFalse())
        })

        It("should return nil the second time until ResetChanges is called", func() {
            pendingChanges.RequestJoin("a")

            first := pendingChanges.CreatePendingView(EmptyView)
            Expect(first).ShouldNot(BeNil())
            Expect(pendingChanges.InstallationInProgress()).Should(BeTrue())

            pendingChanges.RequestJoin("b")
            Expect(pendingChanges.CreatePendingView(EmptyView)).Should(BeNil())

            pendingChanges.ResetChanges(*first)

            second := pendingChanges.CreatePendingView(*first)
            Expect(second).ShouldNot(BeNil())
            Expect(second.ID()).Should(BeNumerically(">", first.ID()))
            Expect(second.Members()).Should(Equal([]Address{"a", "b"}))
        })
    })

    Describe("#RollbackViewID", func() {
        It("should never reuse the id of the rejected proposal", func() {
            pendingChanges.RequestJoin("a")
            proposal := pendingChanges.CreatePendingView(EmptyView)

            Expect(pendingChanges.RollbackViewID()).Should(BeNumerically(">", proposal.ID()))
            Expect(pendingChanges.RollbackViewID()).Should(Equal(proposal.ID() + 2))
        })
    })

    Describe("#ResetChanges", func() {
        It("should prune joiners that made it into the view and leavers that are gone", func() {
            pendingChanges.RequestJoin("a")
            pendingChanges.RequestJoin("b")
            pendingChanges.RequestLeave("c")
            pendingChanges.RequestLeave("d")

            pendingChanges.ResetChanges(NewView(9, []Address{"a", "d"}))

            Expect(pendingChanges.Joiners()).Should(Equal([]Address{"b"}))
            Expect(pendingChanges.Leavers()).Should(Equal([]Address{"d"}))
            Expect(pendingChanges.LastViewID()).Should(Equal(9))
        })

        It("should drop a joiner that also left", func() {
            pendingChanges.RequestJoin("a")
            pendingChanges.RequestLeave("a")

            pendingChanges.ResetChanges(NewView(2, []Address{"x"}))

            Expect(pendingChanges.Joiners()).Should(BeEmpty())
            Expect(pendingChanges.Leavers()).Should(BeEmpty())
            Expect(pendingChanges.HasChanges()).Should(BeFalse())
        })

        It("should clear the recovered membership snapshot", func() {
            pendingChanges.SetMembersAfterCoordinatorChange([]Address{"a"})
            pendingChanges.ResetChanges(NewView(1, []Address{"a"}))

            Expect(pendingChanges.MembersAfterCoordinatorChange()).Should(BeNil())
        })

        It("should never move lastViewID backwards", func() {
            pendingChanges.ObserveViewID(12)
            pendingChanges.ResetChanges(NewView(3, []Address{"a"}))

            Expect(pendingChanges.LastViewID()).Should(Equal(12))
        })
    })

    Describe("#CancelInstallation", func() {
        It("should only clear the guard of the matching proposal", func() {
            pendingChanges.RequestJoin("a")
            proposal := pendingChanges.CreatePendingView(EmptyView)

            Expect(pendingChanges.CancelInstallation(proposal.ID() + 1)).Should(BeFalse())
            Expect(pendingChanges.InstallationInProgress()).Should(BeTrue())
            Expect(pendingChanges.CancelInstallation(proposal.ID())).Should(BeTrue())
            Expect(pendingChanges.InstallationInProgress()).Should(BeFalse())
            Expect(pendingChanges.Joiners()).Should(Equal([]Address{"a"}))
        })
    })

    Describe("#FilterLeavers", func() {
        It("should remove recorded leavers from a target list", func() {
            pendingChanges.RequestLeave("b")

            Expect(pendingChanges.FilterLeavers([]Address{"a", "b", "c"})).Should(Equal([]Address{"a", "c"}))
        })
    })
})
