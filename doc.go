// Package blazestore implements a lock-free in-memory block store for cubic
// chunk sections, designed to be read and written concurrently by game
// tick, network and worldgen goroutines without any locking.
//
// The store keeps the common case cheap: a block with zero data and no
// attached value occupies a single 16-bit slot. Everything else spills into
// an auxiliary record store addressed through a reserved range of slot
// values and read back with sequence-number bracketing, so readers never
// observe a torn state and writers never wait.
//
// BlazeStore is built around a few guarantees:
//   - Reads and writes are wait-free in the compact case and lock-free
//     otherwise; contention is absorbed by internal retries
//   - Multi-field states are never observed torn, enforced by per-record
//     sequence numbers
//   - Mutated cells are tracked in a bounded dirty list with overflow
//     detection, cheap enough to leave always on
//   - Auxiliary storage grows on demand and is reclaimed by an explicit
//     Compress step during a quiesced phase of the tick
package blazestore
