package blazestore

import "log/slog"

// MaxShift is the largest supported side-length shift. A 16-bit slot has to
// address both bare block ids and the reserved record range; cubes past 16³
// would leave no id space for the reserved range.
const MaxShift = 4

// Options holds configuration options for a block store.
type Options struct {
	// Shift sets the side length of the stored chunk section to 1<<Shift
	// cells per axis, between 1 and MaxShift.
	// Defaults to 4 (a 16x16x16 sub chunk).
	Shift int

	// DirtyCapacity is the number of dirty coordinates tracked per reset
	// cycle. Mutations past the capacity still count, but record no
	// coordinates; consumers observe the overflow and rescan the store.
	// Defaults to 10. Higher values suit consumers that replay every change.
	DirtyCapacity int

	// InitialCapacity is the starting auxiliary record capacity, rounded up
	// to a power of two. The store doubles it on demand and Compress shrinks
	// back to it. Defaults to 64.
	InitialCapacity int

	// Log is the Logger to use for debug messages and stats.
	// If nil, defaults to slog.Default().
	Log *slog.Logger
}

// DefaultOptions returns the recommended default options: a 16³ section
// with a small dirty list sized for consumers that rescan on overflow.
func DefaultOptions() *Options {
	return &Options{
		Shift:           4,  // 16x16x16 sub chunk
		DirtyCapacity:   10, // Small; overflow triggers a rescan
		InitialCapacity: 64,
		Log:             slog.Default(),
	}
}

// StreamingOptions returns options for consumers that replay every dirty
// entry instead of rescanning on overflow. The dirty list holds one entry per
// cell, so coordinates are only dropped when more marks than cells land in a
// single reset cycle.
func StreamingOptions() *Options {
	return &Options{
		Shift:           4,
		DirtyCapacity:   16 * 16 * 16, // One entry per cell
		InitialCapacity: 256,          // Streamed sections tend to be busy
		Log:             slog.Default(),
	}
}
