package blazestore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuxStoreAddRemove(t *testing.T) {
	s := newAuxStore[string](64, 4)
	v := "chest"
	slot := s.add(42, 7, &v)

	require.True(t, s.isReserved(slot))
	require.Equal(t, uint16(42), s.id(slot))
	require.Equal(t, uint16(7), s.data(slot))
	require.Same(t, &v, s.attached(slot))
	require.Equal(t, 1, s.entries())
	require.False(t, seqReserved(s.sequence(slot)))

	id, data, attached, ok := s.stable(slot)
	require.True(t, ok)
	assert.Equal(t, uint16(42), id)
	assert.Equal(t, uint16(7), data)
	assert.Same(t, &v, attached)

	require.True(t, s.remove(slot))
	require.Equal(t, 0, s.entries())

	// A double free is reported, never absorbed
	require.False(t, s.remove(slot))

	// A freed record no longer reads as stable
	_, _, _, ok = s.stable(slot)
	require.False(t, ok)
}

func TestAuxStoreSlotReuse(t *testing.T) {
	s := newAuxStore[int](64, 4)
	slots := make([]uint16, 4)
	for i := range slots {
		slots[i] = s.add(uint16(i), 0, nil)
	}
	require.Equal(t, 4, s.size())

	freed := slots[2]
	seqBefore := s.sequence(freed)
	require.True(t, s.remove(freed))

	// The freed slot is the only free one, so the next add must reclaim it
	// rather than grow, and the reclaimed record carries a fresh sequence.
	again := s.add(99, 3, nil)
	require.Equal(t, freed, again)
	require.Equal(t, 4, s.size())
	require.NotEqual(t, seqBefore, s.sequence(again))
	require.Equal(t, uint16(99), s.id(again))
}

func TestAuxStoreGrowth(t *testing.T) {
	s := newAuxStore[int](64, 2)
	require.Equal(t, 2, s.size())

	vals := make([]*int, 10)
	slots := make([]uint16, 10)
	for i := range slots {
		v := i
		vals[i] = &v
		slots[i] = s.add(uint16(i), uint16(i*3), &v)
	}
	require.Equal(t, 10, s.entries())
	require.GreaterOrEqual(t, s.size(), 10)

	// Records claimed before a growth stay addressable after it
	for i, slot := range slots {
		id, data, attached, ok := s.stable(slot)
		require.True(t, ok)
		assert.Equal(t, uint16(i), id)
		assert.Equal(t, uint16(i*3), data)
		assert.Same(t, vals[i], attached)
	}
}

func TestAuxStoreReservedRange(t *testing.T) {
	s := newAuxStore[int](1024, 16)
	base := uint16(0x10000 - 1024)

	require.False(t, s.isReserved(0))
	require.False(t, s.isReserved(base-1))
	require.True(t, s.isReserved(base))
	require.True(t, s.isReserved(0xffff))
}

func TestAuxStoreExhaustion(t *testing.T) {
	s := newAuxStore[int](4, 4)
	for i := 0; i < 4; i++ {
		s.add(uint16(i), 1, nil)
	}
	require.PanicsWithError(t, "add: auxiliary store exhausted", func() {
		s.add(9, 1, nil)
	})
}

func TestAuxStoreConcurrentChurn(t *testing.T) {
	const (
		workers = 8
		rounds  = 2000
	)
	s := newAuxStore[int](4096, 16)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				v := w
				slot := s.add(uint16(w), uint16(r), &v)
				id, data, attached, ok := s.stable(slot)
				if !ok {
					t.Error("owned record read as unstable")
				} else if id != uint16(w) || data != uint16(r) || attached != &v {
					t.Errorf("owned record torn: got id=%d data=%d", id, data)
				}
				if !s.remove(slot) {
					t.Error("remove of an owned record reported a double free")
				}
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, 0, s.entries())
}
