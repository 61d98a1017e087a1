package historian_test

import (
    "github.com/syndtr/goleveldb/leveldb"
    "github.com/syndtr/goleveldb/leveldb/storage"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/historian"

    . "github.com/onsi/ginkgo"
    . "github.com/onsi/gomega"
)

func intPtr(i int) *int {
    return &i
}

func viewIDs(entries []HistoryEntry) []int {
    ids := make([]int, len(entries))

    for i, entry := range entries {
        ids[i] = entry.View.ID()
    }

    return ids
}

var _ = Describe("Historian", func() {
    var db *leveldb.DB

    BeforeEach(func() {
        var err error

        db, err = leveldb.Open(storage.NewMemStorage(), nil)

        Expect(err).Should(BeNil())
    })

    AfterEach(func() {
        db.Close()
    })

    It("should record committed and rolled back views but not prepared ones", func() {
        historian := NewHistorian(db, 0)

        historian.Record(ViewDelta{Type: DeltaViewPrepared, CacheName: "X", View: NewView(1, []Address{"a"})})
        historian.Record(ViewDelta{Type: DeltaViewCommitted, CacheName: "X", View: NewView(1, []Address{"a"})})
        historian.Record(ViewDelta{Type: DeltaViewRolledBack, CacheName: "X", View: NewView(3, []Address{"a"})})

        entries, err := historian.History("X")

        Expect(err).Should(BeNil())
        Expect(entries).Should(HaveLen(2))
        Expect(entries[0].Kind).Should(Equal(KindCommit))
        Expect(entries[0].View).Should(Equal(NewView(1, []Address{"a"})))
        Expect(entries[1].Kind).Should(Equal(KindRollback))
        Expect(entries[1].Serial).Should(BeNumerically(">", entries[0].Serial))
        Expect(historian.LogSize()).Should(Equal(uint64(2)))
    })

    It("should keep caches apart and order entries by view id", func() {
        historian := NewHistorian(db, 0)

        Expect(historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(10, []Address{"a"}), Kind: KindCommit})).Should(BeNil())
        Expect(historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(2, []Address{"a"}), Kind: KindCommit})).Should(BeNil())
        Expect(historian.LogEntry(&HistoryEntry{CacheName: "XY", View: NewView(5, []Address{"b"}), Kind: KindCommit})).Should(BeNil())

        entries, err := historian.History("X")

        Expect(err).Should(BeNil())
        Expect(viewIDs(entries)).Should(Equal([]int{2, 10}))

        entries, err = historian.History("XY")

        Expect(err).Should(BeNil())
        Expect(viewIDs(entries)).Should(Equal([]int{5}))
    })

    It("should answer range queries in either order", func() {
        historian := NewHistorian(db, 0)

        for i := 1; i <= 5; i++ {
            historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(i, []Address{"a"}), Kind: KindCommit})
        }

        iterator, err := historian.Query(&HistoryQuery{CacheName: "X", MinViewID: intPtr(2), MaxViewID: intPtr(4), Order: "desc"})

        Expect(err).Should(BeNil())

        ids := []int{}

        for iterator.Next() {
            ids = append(ids, iterator.Entry().View.ID())
        }

        iterator.Release()

        Expect(iterator.Error()).Should(BeNil())
        Expect(ids).Should(Equal([]int{4, 3, 2}))

        iterator, err = historian.Query(&HistoryQuery{CacheName: "X", Limit: 2})

        Expect(err).Should(BeNil())

        ids = []int{}

        for iterator.Next() {
            ids = append(ids, iterator.Entry().View.ID())
        }

        iterator.Release()

        Expect(ids).Should(Equal([]int{1, 2}))
    })

    It("should purge the oldest entries once the limit is exceeded", func() {
        historian := NewHistorian(db, 3)

        for i := 1; i <= 5; i++ {
            historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(i, []Address{"a"}), Kind: KindCommit})
        }

        entries, err := historian.History("X")

        Expect(err).Should(BeNil())
        Expect(viewIDs(entries)).Should(Equal([]int{3, 4, 5}))
        Expect(historian.LogSize()).Should(Equal(uint64(3)))
    })

    It("should continue numbering entries after being reopened", func() {
        historian := NewHistorian(db, 0)

        historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(1, []Address{"a"}), Kind: KindCommit})
        historian.LogEntry(&HistoryEntry{CacheName: "X", View: NewView(2, []Address{"a"}), Kind: KindCommit})

        reopened := NewHistorian(db, 0)

        Expect(reopened.LogSerial()).Should(Equal(uint64(3)))
        Expect(reopened.LogSize()).Should(Equal(uint64(2)))
    })
})
