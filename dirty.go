package blazestore

import "sync/atomic"

// dirtyTracker records the coordinates of mutated cells in fixed-capacity
// parallel arrays. The counter keeps counting past capacity so a consumer
// can tell a complete list from an overflowed one: complete lists are
// replayed entry by entry, overflowed ones mean a full rescan of the store.
//
// Marks may race each other freely; each mark reserves a distinct index
// through the counter. Entry reads are meant for a consumer draining the
// list after writers quiesce (the usual drain-then-reset cycle at the end of
// a tick); an entry read racing the mark that writes it can observe a
// half-written coordinate.
type dirtyTracker struct {
	capacity int
	count    atomic.Int32
	xs       []uint8
	ys       []uint8
	zs       []uint8
}

// newDirtyTracker returns a tracker recording up to capacity coordinates per
// reset cycle.
func newDirtyTracker(capacity int) *dirtyTracker {
	return &dirtyTracker{
		capacity: capacity,
		xs:       make([]uint8, capacity),
		ys:       make([]uint8, capacity),
		zs:       make([]uint8, capacity),
	}
}

// mark records a mutation of the cell at x, y, z. Marks past capacity bump
// the counter without storing coordinates.
func (d *dirtyTracker) mark(x, y, z int) {
	i := int(d.count.Add(1)) - 1
	if i < d.capacity {
		d.xs[i] = uint8(x)
		d.ys[i] = uint8(y)
		d.zs[i] = uint8(z)
	}
}

// dirty reports whether any cell was marked since the last reset.
func (d *dirtyTracker) dirty() bool {
	return d.count.Load() > 0
}

// overflowed reports whether at least as many cells were marked as the entry
// arrays hold.
func (d *dirtyTracker) overflowed() bool {
	return int(d.count.Load()) >= d.capacity
}

// entry returns the i-th recorded coordinate. ok is false when i is past the
// recorded marks or past capacity.
func (d *dirtyTracker) entry(i int) (x, y, z int, ok bool) {
	if i < 0 || i >= int(d.count.Load()) || i >= d.capacity {
		return 0, 0, 0, false
	}
	return int(d.xs[i]), int(d.ys[i]), int(d.zs[i]), true
}

// size returns the number of entries readable through entry.
func (d *dirtyTracker) size() int {
	n := int(d.count.Load())
	if n > d.capacity {
		return d.capacity
	}
	return n
}

// reset clears the counter. The coordinate arrays are left as they are; the
// counter alone bounds what entry returns, and new marks overwrite old
// coordinates in place.
func (d *dirtyTracker) reset() {
	d.count.Store(0)
}
