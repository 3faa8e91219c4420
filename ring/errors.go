package ring

import (
	"errors"
	"fmt"
)

var (
	// ErrRingTooLarge means the Link chain never returned to the ring base
	// within MaxRecords records.
	ErrRingTooLarge = errors.New("ring exceeds the record limit without closing")

	// ErrMissingLink means the walk ran out of budget on a segment that
	// never ended in a Link TRB.
	ErrMissingLink = errors.New("ring segment does not end with a link TRB")

	// ErrIncomplete means a chained work item is not fully written yet.
	// The walk is rolled back; retry after the next doorbell.
	ErrIncomplete = errors.New("incomplete work item")

	// ErrCyclicIncomplete means the chain bits run a full circuit of the
	// ring without a terminating TRB. Retrying against the same ring
	// contents fails the same way.
	ErrCyclicIncomplete = errors.New("cyclic incomplete work item")

	// ErrDescriptorSize means the TRB count does not fit the descriptor.
	ErrDescriptorSize = errors.New("descriptor size mismatch")

	// ErrPointerOutsideRing means Reset was given an address that is not a
	// shadow slot.
	ErrPointerOutsideRing = errors.New("pointer is not a slot of the ring")
)

// MalformedError is returned when dequeued TRBs could not be assembled into
// a work item. The TRBs are consumed; Entries lets the caller report them.
type MalformedError struct {
	Entries []Entry
	Err     error
}

func (e *MalformedError) Error() string {
	if len(e.Entries) == 0 {
		return fmt.Sprintf("malformed work item: %v", e.Err)
	}
	return fmt.Sprintf("malformed work item at %#x: %v", e.Entries[0].Addr, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
