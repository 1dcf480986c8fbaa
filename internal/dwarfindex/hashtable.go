package dwarfindex

import (
	"sync/atomic"
	"unsafe"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

const (
	tableBits = 17
	tableSize = 1 << tableBits
	tableMask = tableSize - 1
)

// dieHashEntry is one slot of the table. A slot is empty iff namePtr is
// nil. Once tag is observed non-zero by an atomic load, every other field
// was published by the same store (sync/atomic release/acquire ordering)
// and is safe to read.
type dieHashEntry struct {
	namePtr atomic.Pointer[byte]
	nameLen uint32
	tag     atomic.Uint32

	fileIdx      uint32
	cu           uint32
	fileNameHash uint64
	dieOffset    uint64
}

// dieHashTable is a fixed-capacity, open-addressed, lock-free hash table
// keyed by DIE name. Insertion never blocks other inserters except by a
// short spin while a colliding slot finishes publishing.
type dieHashTable struct {
	entries [tableSize]dieHashEntry
}

// nameHash is DJBX33A, masked to the table's bit width.
func nameHash(name []byte) uint32 {
	h := uint32(5381)

	for _, c := range name {
		h = h*33 + uint32(c)
	}

	return h & tableMask
}

// insert publishes one DIE into the table. name aliases the owning file's
// mmap'd data and must outlive the table. Returns direrr.OutOfMemory if the
// table has no free slot along the whole probe sequence.
func (t *dieHashTable) insert(name []byte, tag uint8, fileIdx, cu uint32, fileNameHash, dieOffset uint64) error {
	if len(name) == 0 {
		return nil
	}

	start := nameHash(name)
	namePtr := &name[0]

	for i := uint32(0); i < tableSize; i++ {
		slot := (start + i) & tableMask
		e := &t.entries[slot]

		if e.namePtr.CompareAndSwap(nil, namePtr) {
			e.nameLen = uint32(len(name))
			e.fileIdx = fileIdx
			e.cu = cu
			e.fileNameHash = fileNameHash
			e.dieOffset = dieOffset
			e.tag.Store(uint32(tag))

			return nil
		}

		// Lost the race for this slot (or it was already occupied). Spin
		// until the occupant finishes publishing, then decide whether this
		// is the same insertion (nothing to do) or a genuine collision
		// (keep probing).
		for e.tag.Load() == 0 {
			// another goroutine is mid-publish into this slot
		}

		existing := unsafe.Slice(e.namePtr.Load(), e.nameLen)
		if string(existing) == string(name) && e.cu == cu && e.dieOffset == dieOffset {
			return nil
		}
	}

	return direrr.OutOfMemory("DIE hash table is full")
}

// lookupResult is one matching entry returned by lookup.
type lookupResult struct {
	fileIdx      uint32
	cu           uint32
	dieOffset    uint64
	tag          uint8
	fileNameHash uint64
}

// lookup probes the table for every published entry named name, optionally
// filtered to a single tag (tag==0 means any tag).
func (t *dieHashTable) lookup(name string, tag uint8) []lookupResult {
	if len(name) == 0 {
		return nil
	}

	start := nameHash([]byte(name))

	var results []lookupResult

	for i := uint32(0); i < tableSize; i++ {
		slot := (start + i) & tableMask
		e := &t.entries[slot]

		np := e.namePtr.Load()
		if np == nil {
			break
		}

		gotTag := e.tag.Load()
		for gotTag == 0 {
			gotTag = e.tag.Load()
		}

		existing := unsafe.Slice(np, e.nameLen)
		if string(existing) != name {
			continue
		}

		if tag != 0 && uint8(gotTag) != tag {
			continue
		}

		results = append(results, lookupResult{
			fileIdx:      e.fileIdx,
			cu:           e.cu,
			dieOffset:    e.dieOffset,
			tag:          uint8(gotTag),
			fileNameHash: e.fileNameHash,
		})
	}

	return results
}
