package blazestore

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// BlockState is the full value of one cell: a 16-bit block id, 16 bits of
// block data and an optional attached value. The zero BlockState is air.
type BlockState[T any] struct {
	ID       uint16
	Data     uint16
	Attached *T
}

// Store is a lock-free block store for one cubic chunk section of side
// 1<<shift. States with zero data and no attachment live directly in a
// packed array of 16-bit slots; everything else spills into an auxiliary
// record addressed through a reserved range of slot values, and is read back
// with sequence-number bracketing so readers never observe a torn state.
//
// Every operation is safe for concurrent use and none ever blocks. The one
// exception is Compress, which must run with all other operations quiesced;
// the store panics rather than misbehave when that contract is broken.
type Store[T any] struct {
	shift       uint
	doubleShift uint
	side        int
	mask        int

	slots       *shortArray
	aux         atomic.Pointer[auxStore[T]]
	compressing atomic.Bool
	dirty       *dirtyTracker

	initialCapacity int
	log             *slog.Logger

	reads        atomic.Int64
	writes       atomic.Int64
	retries      atomic.Int64
	compressions atomic.Int64
}

// New returns a store for a chunk section of side 1<<shift using default
// options.
func New[T any](shift int) (*Store[T], error) {
	opts := DefaultOptions()
	opts.Shift = shift
	return NewWithOptions[T](opts)
}

// NewWithOptions returns a store configured by opts. A nil opts is
// equivalent to DefaultOptions().
func NewWithOptions[T any](opts *Options) (*Store[T], error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Shift < 1 || opts.Shift > MaxShift {
		return nil, fmt.Errorf("open store: shift %d: %w", opts.Shift, ErrInvalidShift)
	}
	if opts.DirtyCapacity <= 0 || opts.InitialCapacity <= 0 {
		return nil, fmt.Errorf("open store: %w", ErrInvalidCapacity)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	side := 1 << opts.Shift
	cells := side * side * side
	s := &Store[T]{
		shift:           uint(opts.Shift),
		doubleShift:     uint(opts.Shift) * 2,
		side:            side,
		mask:            side - 1,
		slots:           newShortArray(cells),
		dirty:           newDirtyTracker(opts.DirtyCapacity),
		initialCapacity: ceilPow2(opts.InitialCapacity),
		log:             log.With("store", "blazestore"),
	}
	s.aux.Store(newAuxStore[T](2*cells, s.initialCapacity))
	return s, nil
}

// Side returns the store's side length in cells.
func (s *Store[T]) Side() int {
	return s.side
}

// Shift returns the store's side-length shift.
func (s *Store[T]) Shift() int {
	return int(s.shift)
}

// index flattens local coordinates, masked to the store's side.
func (s *Store[T]) index(x, y, z int) int {
	return (x&s.mask)<<s.doubleShift | (z&s.mask)<<s.shift | y&s.mask
}

// checkCompressing panics when compaction is in progress. Slot values are
// rewritten wholesale during compaction, so any operation that slips in must
// fail fast instead of retrying against a moving target.
func (s *Store[T]) checkCompressing(op string) {
	if s.compressing.Load() {
		panic(invariant(op, "store accessed during compression"))
	}
}

// Block returns the full state of the cell at x, y, z. A read racing a write
// retries until it observes a consistent state; it never blocks and never
// returns a torn one.
func (s *Store[T]) Block(x, y, z int) BlockState[T] {
	s.reads.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("Block")
		aux := s.aux.Load()
		slot := s.slots.get(idx)
		if !aux.isReserved(slot) {
			return BlockState[T]{ID: slot}
		}
		if id, data, attached, ok := aux.stable(slot); ok {
			return BlockState[T]{ID: id, Data: data, Attached: attached}
		}
		s.retries.Add(1)
	}
}

// ID returns the block id of the cell at x, y, z. For overflow cells the read
// is bracketed by two sequence reads like Block, touching only the id.
func (s *Store[T]) ID(x, y, z int) uint16 {
	s.reads.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("ID")
		aux := s.aux.Load()
		slot := s.slots.get(idx)
		if !aux.isReserved(slot) {
			return slot
		}
		if seq := aux.sequence(slot); !seqReserved(seq) {
			id := aux.id(slot)
			if aux.sequence(slot) == seq {
				return id
			}
		}
		s.retries.Add(1)
	}
}

// Data returns the block data of the cell at x, y, z, which is 0 for any cell
// in compact form.
func (s *Store[T]) Data(x, y, z int) uint16 {
	s.reads.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("Data")
		aux := s.aux.Load()
		slot := s.slots.get(idx)
		if !aux.isReserved(slot) {
			return 0
		}
		if seq := aux.sequence(slot); !seqReserved(seq) {
			data := aux.data(slot)
			if aux.sequence(slot) == seq {
				return data
			}
		}
		s.retries.Add(1)
	}
}

// Attached returns the attached value of the cell at x, y, z, or nil for any
// cell in compact form.
func (s *Store[T]) Attached(x, y, z int) *T {
	s.reads.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("Attached")
		aux := s.aux.Load()
		slot := s.slots.get(idx)
		if !aux.isReserved(slot) {
			return nil
		}
		if seq := aux.sequence(slot); !seqReserved(seq) {
			attached := aux.attached(slot)
			if aux.sequence(slot) == seq {
				return attached
			}
		}
		s.retries.Add(1)
	}
}

// Sequence returns the sequence number of the cell at x, y, z, or
// SequenceAtomic for cells in compact form. Two equal Sequence observations
// bracketing a pair of ID/Data/Attached reads prove the reads consistent.
func (s *Store[T]) Sequence(x, y, z int) int32 {
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("Sequence")
		aux := s.aux.Load()
		slot := s.slots.get(idx)
		if !aux.isReserved(slot) {
			return SequenceAtomic
		}
		if seq := aux.sequence(slot); !seqReserved(seq) {
			return seq
		}
		s.retries.Add(1)
	}
}

// SetBlock sets the cell at x, y, z. Concurrent writers race on a single
// compare-and-swap of the cell's slot and the last winner's state is the one
// that remains; SetBlock itself always succeeds.
func (s *Store[T]) SetBlock(x, y, z int, b BlockState[T]) {
	s.writes.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("SetBlock")
		aux := s.aux.Load()
		old := s.slots.get(idx)
		if b.Data == 0 && b.Attached == nil && !aux.isReserved(b.ID) {
			if !s.slots.compareAndSet(idx, old, b.ID) {
				s.retries.Add(1)
				continue
			}
		} else {
			slot := aux.add(b.ID, b.Data, b.Attached)
			if !s.slots.compareAndSet(idx, old, slot) {
				// The new record was never published; rolling it back
				// must succeed, nobody else may free it
				if !aux.remove(slot) {
					panic(invariant("SetBlock", "unpublished record vanished during rollback"))
				}
				s.retries.Add(1)
				continue
			}
		}
		if aux.isReserved(old) {
			if !aux.remove(old) {
				panic(invariant("SetBlock", "old record was already removed"))
			}
		}
		s.dirty.mark(x&s.mask, y&s.mask, z&s.mask)
		return
	}
}

// CompareAndSetBlock replaces the cell at x, y, z with new only if its
// current state equals old, and reports whether it did. Attached values are
// compared by pointer identity. A false return means the cell held a
// different state; contention with other writers is absorbed internally.
func (s *Store[T]) CompareAndSetBlock(x, y, z int, old, new BlockState[T]) bool {
	s.writes.Add(1)
	idx := s.index(x, y, z)
	for {
		s.checkCompressing("CompareAndSetBlock")
		aux := s.aux.Load()
		cur := s.slots.get(idx)
		if !aux.isReserved(cur) {
			if cur != old.ID || old.Data != 0 || old.Attached != nil {
				return false
			}
		} else {
			id, data, attached, ok := aux.stable(cur)
			if !ok {
				s.retries.Add(1)
				continue
			}
			if id != old.ID || data != old.Data || attached != old.Attached {
				return false
			}
		}
		if new.Data == 0 && new.Attached == nil && !aux.isReserved(new.ID) {
			if !s.slots.compareAndSet(idx, cur, new.ID) {
				s.retries.Add(1)
				continue
			}
		} else {
			slot := aux.add(new.ID, new.Data, new.Attached)
			if !s.slots.compareAndSet(idx, cur, slot) {
				if !aux.remove(slot) {
					panic(invariant("CompareAndSetBlock", "unpublished record vanished during rollback"))
				}
				s.retries.Add(1)
				continue
			}
		}
		if aux.isReserved(cur) {
			if !aux.remove(cur) {
				panic(invariant("CompareAndSetBlock", "old record was already removed"))
			}
		}
		s.dirty.mark(x&s.mask, y&s.mask, z&s.mask)
		return true
	}
}

// NeedsCompression reports whether live auxiliary records have fallen below
// 3/8 of the auxiliary capacity, the point where rebuilding pays for itself.
func (s *Store[T]) NeedsCompression() bool {
	aux := s.aux.Load()
	return (aux.entries()<<3)/3 < aux.size()
}

// Compress rebuilds the auxiliary store at its initial capacity, dropping
// the slack accumulated by past churn. The caller must keep every other
// operation quiesced until Compress returns: a mutation observed mid-rebuild
// panics, as does a Compress racing another Compress.
func (s *Store[T]) Compress() {
	if !s.compressing.CompareAndSwap(false, true) {
		panic(invariant("Compress", "compression already in progress"))
	}
	old := s.aux.Load()
	fresh := newAuxStore[T](old.maxRecords, s.initialCapacity)
	for i := 0; i < s.slots.length(); i++ {
		slot := s.slots.get(i)
		if !old.isReserved(slot) {
			continue
		}
		id, data, attached, ok := old.stable(slot)
		if !ok {
			panic(invariant("Compress", "record unstable during compression"))
		}
		moved := fresh.add(id, data, attached)
		if !s.slots.compareAndSet(i, slot, moved) {
			panic(invariant("Compress", "slot changed during compression"))
		}
	}
	s.aux.Store(fresh)
	s.compressions.Add(1)
	s.log.Debug("compressed auxiliary store",
		"entries", fresh.entries(),
		"capacity_before", old.size(),
		"capacity_after", fresh.size(),
	)
	s.compressing.Store(false)
}

// Size returns the auxiliary store's capacity in records.
func (s *Store[T]) Size() int {
	s.checkCompressing("Size")
	return s.aux.Load().size()
}

// Entries returns the number of live auxiliary records.
func (s *Store[T]) Entries() int {
	s.checkCompressing("Entries")
	return s.aux.Load().entries()
}

// BlockIDs returns a snapshot of every cell's block id in flat index order.
// Cells are copied one at a time; a cell mutated mid-copy is captured either
// before or after its write, never torn.
func (s *Store[T]) BlockIDs() []uint16 {
	s.checkCompressing("BlockIDs")
	aux := s.aux.Load()
	ids := make([]uint16, s.slots.length())
	for i := range ids {
		for {
			slot := s.slots.get(i)
			if !aux.isReserved(slot) {
				ids[i] = slot
				break
			}
			if id, _, _, ok := aux.stable(slot); ok {
				ids[i] = id
				break
			}
			s.retries.Add(1)
		}
	}
	return ids
}

// Range calls fn for every cell in flat index order, stopping early when fn
// returns false. Each cell is read with the same consistency as Block; the
// traversal as a whole is not a point-in-time snapshot.
func (s *Store[T]) Range(fn func(x, y, z int, b BlockState[T]) bool) {
	for x := 0; x < s.side; x++ {
		for z := 0; z < s.side; z++ {
			for y := 0; y < s.side; y++ {
				if !fn(x, y, z, s.Block(x, y, z)) {
					return
				}
			}
		}
	}
}

// MarkDirty records the cell at x, y, z as mutated without changing it.
func (s *Store[T]) MarkDirty(x, y, z int) {
	s.dirty.mark(x&s.mask, y&s.mask, z&s.mask)
}

// IsDirty reports whether any cell was mutated since the last ResetDirty.
func (s *Store[T]) IsDirty() bool {
	return s.dirty.dirty()
}

// DirtyOverflow reports whether more cells were marked than the dirty list
// holds. Consumers seeing an overflow rescan the whole store instead of
// replaying entries.
func (s *Store[T]) DirtyOverflow() bool {
	return s.dirty.overflowed()
}

// DirtyCount returns the number of dirty entries readable by DirtyBlock.
func (s *Store[T]) DirtyCount() int {
	return s.dirty.size()
}

// DirtyBlock returns the coordinates of the i-th dirty entry recorded since
// the last reset. ok is false past the recorded entries.
func (s *Store[T]) DirtyBlock(i int) (x, y, z int, ok bool) {
	return s.dirty.entry(i)
}

// ResetDirty clears the dirty list. Only the counter is reset; coordinates
// are overwritten in place by subsequent marks.
func (s *Store[T]) ResetDirty() {
	s.dirty.reset()
}

// Stats holds performance counters for a store.
type Stats struct {
	Reads        int64
	Writes       int64
	Retries      int64
	Compressions int64
	AuxEntries   int
	AuxCapacity  int
	DirtyCount   int
}

// GetStats returns current performance counters.
func (s *Store[T]) GetStats() *Stats {
	aux := s.aux.Load()
	return &Stats{
		Reads:        s.reads.Load(),
		Writes:       s.writes.Load(),
		Retries:      s.retries.Load(),
		Compressions: s.compressions.Load(),
		AuxEntries:   aux.entries(),
		AuxCapacity:  aux.size(),
		DirtyCount:   s.dirty.size(),
	}
}

// LogStats logs current performance counters once.
func (s *Store[T]) LogStats() {
	stats := s.GetStats()
	s.log.Info("BlazeStore Stats",
		"reads", stats.Reads,
		"writes", stats.Writes,
		"retries", stats.Retries,
		"compressions", stats.Compressions,
		"aux_entries", stats.AuxEntries,
		"aux_capacity", stats.AuxCapacity,
		"dirty", stats.DirtyCount,
	)
}

// StartStatsLogger starts a background goroutine that logs performance
// counters at the specified interval. Returns a function to stop the logger.
func (s *Store[T]) StartStatsLogger(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.LogStats()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
