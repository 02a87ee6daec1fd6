package blazestore

import (
	"math/bits"
	"sync/atomic"
)

// auxEntry is one auxiliary record. Its sequence field orders every access:
// seqFree marks the slot unclaimed, seqUnstable marks fields mid-write or
// mid-clear, and any other value is a stable brand unique to the last
// completed write. Entries are allocated once and never move, so indices
// handed out before a growth stay valid after it.
type auxEntry[T any] struct {
	seq      atomic.Int32
	packed   atomic.Uint32 // Block id in the high half, data in the low half
	attached atomic.Pointer[T]
}

// newAuxEntry returns an unclaimed entry.
func newAuxEntry[T any]() *auxEntry[T] {
	e := &auxEntry[T]{}
	e.seq.Store(seqFree)
	return e
}

// auxStore holds the expanded form of cells that do not fit a bare 16-bit
// slot: full id/data pairs plus an optional attached value. Records are
// addressed through a reserved range at the top of the slot space; a primary
// slot holding a value >= reservedBase refers to the record at
// value - reservedBase.
//
// The backing slice is grown copy-on-write in powers of two up to
// maxRecords. maxRecords is twice the cell count of the owning store: one
// record per cell at the steady-state maximum, doubled so writers that hold
// a new record while the old one still occupies the cell never run out.
type auxStore[T any] struct {
	reservedBase uint32
	maxRecords   int
	entryCount   atomic.Int32
	scan         atomic.Uint32
	records      atomic.Pointer[[]*auxEntry[T]]
}

// newAuxStore returns a store addressing at most maxRecords records, with
// initial slots pre-allocated. Both counts must be powers of two; initial is
// rounded up and clamped.
func newAuxStore[T any](maxRecords, initial int) *auxStore[T] {
	initial = ceilPow2(initial)
	if initial > maxRecords {
		initial = maxRecords
	}
	s := &auxStore[T]{
		reservedBase: uint32(0x10000 - maxRecords),
		maxRecords:   maxRecords,
	}
	recs := make([]*auxEntry[T], initial)
	for i := range recs {
		recs[i] = newAuxEntry[T]()
	}
	s.records.Store(&recs)
	return s
}

// add claims a slot for a new record and returns its reserved-range slot
// value. The record carries a fresh stable sequence when add returns, but is
// not reachable by readers until the caller installs the returned value in a
// primary slot. Panics when more records are claimed than the reserved range
// can address.
func (s *auxStore[T]) add(id, data uint16, attached *T) uint16 {
	s.entryCount.Add(1)
	for {
		recs := *s.records.Load()
		if int(s.entryCount.Load()) > len(recs) {
			s.grow()
			continue
		}
		idx, ok := s.claim(recs)
		if !ok {
			// Every free slot was taken mid-scan, or the slice is stale
			s.grow()
			continue
		}
		e := recs[idx]
		e.attached.Store(attached)
		e.packed.Store(uint32(id)<<16 | uint32(data))
		e.seq.Store(nextSeq())
		return uint16(s.reservedBase + uint32(idx))
	}
}

// claim scans for a free slot from the rotating cursor and takes it,
// flipping its sequence to seqUnstable.
func (s *auxStore[T]) claim(recs []*auxEntry[T]) (int, bool) {
	start := int(s.scan.Add(1))
	for i := 0; i < len(recs); i++ {
		idx := (start + i) & (len(recs) - 1)
		e := recs[idx]
		if e.seq.Load() == seqFree && e.seq.CompareAndSwap(seqFree, seqUnstable) {
			return idx, true
		}
	}
	return 0, false
}

// grow doubles the backing slice copy-on-write. Existing entries are shared
// between the old and new slice, so records never move; the loser of a
// concurrent grow discards its copy. Called at capacity, grow is a no-op
// unless the reserved range itself is exhausted, which is fatal.
func (s *auxStore[T]) grow() {
	old := s.records.Load()
	n := len(*old)
	if n >= s.maxRecords {
		if int(s.entryCount.Load()) > s.maxRecords {
			panic(invariant("add", "auxiliary store exhausted"))
		}
		return
	}
	nn := n * 2
	if nn > s.maxRecords {
		nn = s.maxRecords
	}
	recs := make([]*auxEntry[T], nn)
	copy(recs, *old)
	for i := n; i < nn; i++ {
		recs[i] = newAuxEntry[T]()
	}
	s.records.CompareAndSwap(old, &recs)
}

// remove frees the record at slot, returning false when it is already free.
// The sequence passes through seqUnstable while the fields are cleared, so a
// concurrent add can never claim a half-cleared record.
func (s *auxStore[T]) remove(slot uint16) bool {
	e := s.entry(slot)
	for {
		old := e.seq.Load()
		if old == seqFree {
			return false
		}
		if old == seqUnstable {
			// Mid-clear by a competing remove; wait for it to settle
			continue
		}
		if e.seq.CompareAndSwap(old, seqUnstable) {
			e.attached.Store(nil)
			e.packed.Store(0)
			s.entryCount.Add(-1)
			e.seq.Store(seqFree)
			return true
		}
	}
}

// stable performs one sequence-bracketed read of the record at slot. ok is
// false when the record was mid-write, freed or reclaimed during the read;
// callers re-read the primary slot and try again.
func (s *auxStore[T]) stable(slot uint16) (id, data uint16, attached *T, ok bool) {
	e := s.entry(slot)
	seq := e.seq.Load()
	if seqReserved(seq) {
		return 0, 0, nil, false
	}
	w := e.packed.Load()
	attached = e.attached.Load()
	if e.seq.Load() != seq {
		return 0, 0, nil, false
	}
	return uint16(w >> 16), uint16(w), attached, true
}

// id returns the block id of the record at slot.
func (s *auxStore[T]) id(slot uint16) uint16 {
	return uint16(s.entry(slot).packed.Load() >> 16)
}

// data returns the block data of the record at slot.
func (s *auxStore[T]) data(slot uint16) uint16 {
	return uint16(s.entry(slot).packed.Load())
}

// attached returns the attached value of the record at slot.
func (s *auxStore[T]) attached(slot uint16) *T {
	return s.entry(slot).attached.Load()
}

// sequence returns the current sequence of the record at slot, which is a
// sentinel while the record is being written or freed.
func (s *auxStore[T]) sequence(slot uint16) int32 {
	return s.entry(slot).seq.Load()
}

// isReserved reports whether v addresses an auxiliary record rather than
// being a bare block id.
func (s *auxStore[T]) isReserved(v uint16) bool {
	return uint32(v) >= s.reservedBase
}

// entry resolves a reserved-range slot value to its record.
func (s *auxStore[T]) entry(slot uint16) *auxEntry[T] {
	return (*s.records.Load())[uint32(slot)-s.reservedBase]
}

// entries returns the number of live records.
func (s *auxStore[T]) entries() int {
	return int(s.entryCount.Load())
}

// size returns the backing capacity in records.
func (s *auxStore[T]) size() int {
	return len(*s.records.Load())
}

// ceilPow2 rounds n up to the next power of two.
func ceilPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
