package blazestore

import "sync/atomic"

// Sequence numbers brand every completed auxiliary record write. A reader
// snapshots a record's sequence, reads its fields and checks the sequence
// again: an unchanged non-sentinel value proves the fields were not torn by
// a concurrent writer. A small window of negative values is reserved for
// sentinels so stable numbers and sentinels can never collide.
const (
	// SequenceAtomic is reported by Store.Sequence for cells held in compact
	// form. Such cells occupy a single 16-bit slot, every read of them is
	// inherently atomic and no bracketing is needed.
	SequenceAtomic int32 = -1

	// seqUnstable marks a record whose fields are mid-write. Readers seeing
	// it retry from the primary slot.
	seqUnstable int32 = -2

	// seqFree marks an unclaimed auxiliary slot.
	seqFree int32 = -3

	// seqReservedMin is the lowest sentinel value. The window below it is
	// wider than the three sentinels in use so the generator never has to
	// change when one is added.
	seqReservedMin int32 = -16
)

// seqReserved reports whether v falls inside the reserved sentinel window.
func seqReserved(v int32) bool {
	return v >= seqReservedMin && v < 0
}

// seqCounter is shared by every store in the process. Global monotonicity is
// what defeats ABA: a slot freed and reclaimed between a reader's two
// sequence checks always carries a number the reader has never seen.
var seqCounter atomic.Int32

// nextSeq returns a fresh sequence number, skipping the sentinel window.
// The counter wraps after 2^31 completed writes; sentinels are skipped on
// the way through, so a wrap only narrows uniqueness, never forges one.
func nextSeq() int32 {
	for {
		if v := seqCounter.Add(1); !seqReserved(v) {
			return v
		}
	}
}
