package blazestore

import (
	"errors"
	"fmt"
)

// ErrInvalidShift is returned when a store is created with a side-length
// shift outside the range 1..MaxShift.
var ErrInvalidShift = errors.New("shift must be between 1 and 4")

// ErrInvalidCapacity is returned when a store is created with a non-positive
// dirty or auxiliary capacity.
var ErrInvalidCapacity = errors.New("capacity must be positive")

// InvariantError is carried by panics raised when the store detects broken
// internal state: a record freed twice, a slot changing under a caller that
// holds exclusivity, or an operation entered while compaction runs. These are
// contract violations, not recoverable conditions; the store never retries
// them or fabricates a result, and its state must be considered corrupt
// afterwards.
type InvariantError struct {
	// Op is the operation that detected the violation.
	Op string
	// Msg describes the violated invariant.
	Msg string
}

// Error returns the operation and violation description.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// invariant builds the panic payload for a detected invariant violation.
func invariant(op, msg string) *InvariantError {
	return &InvariantError{Op: op, Msg: msg}
}
