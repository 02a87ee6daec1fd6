package blazestore

import "sync/atomic"

// shortArray is a fixed-length array of uint16 cells supporting atomic loads
// and compare-and-swap. Cells are packed two per 32-bit word, the narrowest
// unit a CAS can target; an operation on one cell never disturbs its word
// neighbour.
type shortArray struct {
	n     int
	words []atomic.Uint32
}

// newShortArray returns a zero-filled array of n cells.
func newShortArray(n int) *shortArray {
	return &shortArray{
		n:     n,
		words: make([]atomic.Uint32, (n+1)/2),
	}
}

// get returns the cell at i.
func (a *shortArray) get(i int) uint16 {
	return uint16(a.words[i>>1].Load() >> a.shift(i))
}

// compareAndSet replaces the cell at i with new if it currently holds old.
// A concurrent change to the neighbouring cell of the same word is retried
// internally; false is returned only when the cell itself no longer holds
// old.
func (a *shortArray) compareAndSet(i int, old, new uint16) bool {
	word := &a.words[i>>1]
	shift := a.shift(i)
	for {
		w := word.Load()
		if uint16(w>>shift) != old {
			return false
		}
		nw := w&^(uint32(0xffff)<<shift) | uint32(new)<<shift
		if word.CompareAndSwap(w, nw) {
			return true
		}
	}
}

// length returns the number of cells.
func (a *shortArray) length() int {
	return a.n
}

// shift returns the bit offset of cell i within its word.
func (a *shortArray) shift(i int) uint {
	return uint(i&1) << 4
}
