package historian

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
    "encoding/binary"
    "encoding/json"
    "math"
    "sync"
    "time"

    "github.com/syndtr/goleveldb/leveldb"
    levelErrors "github.com/syndtr/goleveldb/leveldb/errors"
    "github.com/syndtr/goleveldb/leveldb/iterator"
    "github.com/syndtr/goleveldb/leveldb/opt"
    "github.com/syndtr/goleveldb/leveldb/util"

    . "github.com/PelionIoT/cacheviews/cluster"
    . "github.com/PelionIoT/cacheviews/logging"
)

var (
    BY_CACHE_AND_VIEW_PREFIX    = []byte{0}
    BY_SERIAL_NUMBER_PREFIX     = []byte{1}
    SEQUENTIAL_COUNTER_PREFIX   = []byte{2}
    CURRENT_SIZE_COUNTER_PREFIX = []byte{3}
    DELIMETER                   = []byte{0}
)

const (
    KindCommit   = "commit"
    KindRollback = "rollback"
)

func uint64Bytes(n uint64) []byte {
    bytes := make([]byte, 8)

    binary.BigEndian.PutUint64(bytes, n)

    return bytes
}

// viewIDBytes keeps negative ids ordered before positive ones
func viewIDBytes(viewID int) []byte {
    return uint64Bytes(uint64(int64(viewID)) ^ (1 << 63))
}

type HistoryQuery struct {
    CacheName string
    MinViewID *int
    MaxViewID *int
    Order     string
    Limit     int
}

// HistoryEntry records one view that was committed or rolled back on this node
type HistoryEntry struct {
    CacheName string `json:"cache"`
    View      View   `json:"view"`
    Kind      string `json:"kind"`
    Timestamp uint64 `json:"timestamp"`
    Serial    uint64 `json:"serial"`
}

func (entry *HistoryEntry) cachePrefix() []byte {
    cacheName := []byte(entry.CacheName)
    result := make([]byte, 0, len(BY_CACHE_AND_VIEW_PREFIX)+len(cacheName)+len(DELIMETER))

    result = append(result, BY_CACHE_AND_VIEW_PREFIX...)
    result = append(result, cacheName...)
    result = append(result, DELIMETER...)

    return result
}

func (entry *HistoryEntry) indexByCacheAndView() []byte {
    return append(entry.cachePrefix(), viewIDBytes(entry.View.ID())...)
}

func (entry *HistoryEntry) indexBySerial() []byte {
    return append(append([]byte{}, BY_SERIAL_NUMBER_PREFIX...), uint64Bytes(entry.Serial)...)
}

// Historian is a journal of the views installed on this node. The oldest
// entries are purged once the journal holds more than entryLimit entries.
type Historian struct {
    db          *leveldb.DB
    nextID      uint64
    currentSize uint64
    entryLimit  uint64
    logLock     sync.Mutex
}

// OpenHistorian opens the journal stored in dir, attempting a repair if the
// database is corrupted
func OpenHistorian(dir string, entryLimit uint64) (*Historian, error) {
    db, err := leveldb.OpenFile(dir, &opt.Options{})

    if err != nil {
        if !levelErrors.IsCorrupted(err) {
            Log.Errorf("Unable to open history database at %s: %v", dir, err)

            return nil, err
        }

        Log.Criticalf("History database at %s is corrupted. Attempting recovery: %v", dir, err)

        db, err = leveldb.RecoverFile(dir, &opt.Options{})

        if err != nil {
            Log.Criticalf("Unable to recover history database at %s: %v", dir, err)

            return nil, ECorrupted
        }
    }

    return NewHistorian(db, entryLimit), nil
}

func NewHistorian(db *leveldb.DB, entryLimit uint64) *Historian {
    var nextID uint64
    var currentSize uint64

    if value, err := db.Get(SEQUENTIAL_COUNTER_PREFIX, nil); err == nil && len(value) == 8 {
        nextID = binary.BigEndian.Uint64(value)
    }

    if value, err := db.Get(CURRENT_SIZE_COUNTER_PREFIX, nil); err == nil && len(value) == 8 {
        currentSize = binary.BigEndian.Uint64(value)
    }

    historian := &Historian{
        db:          db,
        nextID:      nextID + 1,
        currentSize: currentSize,
        entryLimit:  entryLimit,
    }

    historian.RotateLog()

    return historian
}

func (historian *Historian) LogSize() uint64 {
    historian.logLock.Lock()
    defer historian.logLock.Unlock()

    return historian.currentSize
}

func (historian *Historian) LogSerial() uint64 {
    historian.logLock.Lock()
    defer historian.logLock.Unlock()

    return historian.nextID
}

// Record journals committed and rolled back views. It is meant to be
// registered with ViewsManager.OnLocalUpdates.
func (historian *Historian) Record(delta ViewDelta) {
    var kind string

    switch delta.Type {
    case DeltaViewCommitted:
        kind = KindCommit
    case DeltaViewRolledBack:
        kind = KindRollback
    default:
        return
    }

    historian.LogEntry(&HistoryEntry{
        CacheName: delta.CacheName,
        View:      delta.View,
        Kind:      kind,
        Timestamp: uint64(time.Now().UnixNano() / int64(time.Millisecond)),
    })
}

func (historian *Historian) LogEntry(entry *HistoryEntry) error {
    historian.logLock.Lock()
    defer historian.logLock.Unlock()

    entry.Serial = historian.nextID

    marshaledEntry, err := json.Marshal(entry)

    if err != nil {
        Log.Errorf("Could not marshal history entry to JSON: %v", err)

        return EStorage
    }

    batch := new(leveldb.Batch)
    batch.Put(entry.indexByCacheAndView(), marshaledEntry)
    batch.Put(entry.indexBySerial(), entry.indexByCacheAndView())
    batch.Put(SEQUENTIAL_COUNTER_PREFIX, uint64Bytes(entry.Serial))
    batch.Put(CURRENT_SIZE_COUNTER_PREFIX, uint64Bytes(historian.currentSize+1))

    if err := historian.db.Write(batch, nil); err != nil {
        Log.Errorf("Storage driver error in LogEntry(%v): %v", entry, err)

        return EStorage
    }

    historian.nextID++
    historian.currentSize++

    return historian.rotateLog()
}

// Query iterates over the entries of one cache in view id order
func (historian *Historian) Query(query *HistoryQuery) (*EntryIterator, error) {
    prefix := (&HistoryEntry{CacheName: query.CacheName}).cachePrefix()
    keyRange := util.BytesPrefix(prefix)

    if query.MinViewID != nil {
        keyRange.Start = append(append([]byte{}, prefix...), viewIDBytes(*query.MinViewID)...)
    }

    if query.MaxViewID != nil && *query.MaxViewID < math.MaxInt {
        keyRange.Limit = append(append([]byte{}, prefix...), viewIDBytes(*query.MaxViewID+1)...)
    }

    snapshot, err := historian.db.GetSnapshot()

    if err != nil {
        Log.Errorf("Storage driver error in Query(%v): %v", query, err)

        return nil, EStorage
    }

    return newEntryIterator(snapshot, snapshot.NewIterator(keyRange, nil), query.Order == "desc", query.Limit), nil
}

// History returns every entry of a cache ordered by view id
func (historian *Historian) History(cacheName string) ([]HistoryEntry, error) {
    entryIterator, err := historian.Query(&HistoryQuery{CacheName: cacheName})

    if err != nil {
        return nil, err
    }

    defer entryIterator.Release()

    entries := make([]HistoryEntry, 0)

    for entryIterator.Next() {
        entries = append(entries, *entryIterator.Entry())
    }

    if entryIterator.Error() != nil {
        return nil, entryIterator.Error()
    }

    return entries, nil
}

func (historian *Historian) RotateLog() error {
    historian.logLock.Lock()
    defer historian.logLock.Unlock()

    return historian.rotateLog()
}

// rotateLog purges the oldest entries until the log is within its limit
func (historian *Historian) rotateLog() error {
    if historian.entryLimit == 0 || historian.currentSize <= historian.entryLimit {
        return nil
    }

    excess := historian.currentSize - historian.entryLimit
    it := historian.db.NewIterator(util.BytesPrefix(BY_SERIAL_NUMBER_PREFIX), nil)
    defer it.Release()

    batch := new(leveldb.Batch)
    var purged uint64

    for purged < excess && it.Next() {
        batch.Delete(append([]byte{}, it.Key()...))
        batch.Delete(append([]byte{}, it.Value()...))
        purged++
    }

    if it.Error() != nil {
        Log.Errorf("Storage driver error in RotateLog(): %v", it.Error())

        return EStorage
    }

    batch.Put(CURRENT_SIZE_COUNTER_PREFIX, uint64Bytes(historian.currentSize-purged))

    if err := historian.db.Write(batch, nil); err != nil {
        Log.Errorf("Storage driver error in RotateLog(): %v", err)

        return EStorage
    }

    historian.currentSize -= purged

    return nil
}

func (historian *Historian) Close() error {
    return historian.db.Close()
}

type EntryIterator struct {
    snapshot     *leveldb.Snapshot
    dbIterator   iterator.Iterator
    backward     bool
    started      bool
    parseError   error
    currentEntry *HistoryEntry
    limit        uint64
    entriesSeen  uint64
    released     bool
}

func newEntryIterator(snapshot *leveldb.Snapshot, dbIterator iterator.Iterator, backward bool, limit int) *EntryIterator {
    if limit < 0 {
        limit = 0
    }

    return &EntryIterator{
        snapshot:   snapshot,
        dbIterator: dbIterator,
        backward:   backward,
        limit:      uint64(limit),
    }
}

func (ei *EntryIterator) advance() bool {
    if !ei.started {
        ei.started = true

        if ei.backward {
            return ei.dbIterator.Last()
        }

        return ei.dbIterator.First()
    }

    if ei.backward {
        return ei.dbIterator.Prev()
    }

    return ei.dbIterator.Next()
}

func (ei *EntryIterator) Next() bool {
    ei.currentEntry = nil

    if ei.released || (ei.limit != 0 && ei.entriesSeen == ei.limit) {
        return false
    }

    if !ei.advance() {
        if ei.dbIterator.Error() != nil {
            Log.Errorf("Storage driver error in Next(): %v", ei.dbIterator.Error())
        }

        return false
    }

    var entry HistoryEntry

    ei.parseError = json.Unmarshal(ei.dbIterator.Value(), &entry)

    if ei.parseError != nil {
        Log.Errorf("Storage driver error in Next() key = %v, value = %v: %v", ei.dbIterator.Key(), ei.dbIterator.Value(), ei.parseError)

        return false
    }

    ei.currentEntry = &entry
    ei.entriesSeen++

    return true
}

func (ei *EntryIterator) Entry() *HistoryEntry {
    return ei.currentEntry
}

func (ei *EntryIterator) Release() {
    if ei.released {
        return
    }

    ei.released = true
    ei.dbIterator.Release()
    ei.snapshot.Release()
}

func (ei *EntryIterator) Error() error {
    if ei.parseError != nil || ei.dbIterator.Error() != nil {
        return EStorage
    }

    return nil
}
