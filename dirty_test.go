package blazestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirtyTrackerRecordsCoordinates(t *testing.T) {
	d := newDirtyTracker(10)
	require.False(t, d.dirty())
	require.Equal(t, 0, d.size())

	d.mark(1, 2, 3)
	d.mark(4, 5, 6)
	require.True(t, d.dirty())
	require.False(t, d.overflowed())
	require.Equal(t, 2, d.size())

	x, y, z, ok := d.entry(0)
	require.True(t, ok)
	assert.Equal(t, [3]int{1, 2, 3}, [3]int{x, y, z})

	x, y, z, ok = d.entry(1)
	require.True(t, ok)
	assert.Equal(t, [3]int{4, 5, 6}, [3]int{x, y, z})

	_, _, _, ok = d.entry(2)
	require.False(t, ok)
}

func TestDirtyTrackerOverflow(t *testing.T) {
	d := newDirtyTracker(4)
	for i := 0; i < 6; i++ {
		d.mark(i, i, i)
	}
	require.True(t, d.overflowed())
	require.Equal(t, 4, d.size())

	// Entries under capacity stay valid, the rest are not addressable even
	// though the counter kept counting
	x, _, _, ok := d.entry(3)
	require.True(t, ok)
	assert.Equal(t, 3, x)
	_, _, _, ok = d.entry(4)
	require.False(t, ok)
}

func TestDirtyTrackerOverflowAtCapacity(t *testing.T) {
	// Exactly filling the list already counts as overflow: the consumer
	// cannot tell a complete list from a truncated one at that point.
	d := newDirtyTracker(2)
	d.mark(0, 0, 0)
	require.False(t, d.overflowed())
	d.mark(1, 1, 1)
	require.True(t, d.overflowed())
}

func TestDirtyTrackerReset(t *testing.T) {
	d := newDirtyTracker(4)
	d.mark(7, 8, 9)
	d.reset()
	require.False(t, d.dirty())
	require.Equal(t, 0, d.size())
	_, _, _, ok := d.entry(0)
	require.False(t, ok)

	// Marks after a reset overwrite entries from the start
	d.mark(1, 1, 1)
	x, y, z, ok := d.entry(0)
	require.True(t, ok)
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{x, y, z})
}
