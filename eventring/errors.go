package eventring

import (
	"errors"
	"fmt"

	"github.com/Alia5/vxhci/trb"
)

var (
	// ErrEmptySegmentTable means ERSTSZ is 0.
	ErrEmptySegmentTable = errors.New("eventring: segment table has no entries")

	// ErrSegmentSize means a segment table entry has an unsupported size.
	ErrSegmentSize = errors.New("eventring: segment size outside [16, 4096]")

	// ErrFull is wrapped by every *FullError.
	ErrFull = errors.New("eventring: ring full")
)

// FullError is returned by Enqueue when flow control rejected Event.
// SentinelWritten is true when this call wrote the Event Ring Full record;
// it is false while the ring waits for the guest to move the dequeue pointer.
type FullError struct {
	Event           trb.TRB
	SentinelWritten bool
}

func (e *FullError) Error() string {
	if e.SentinelWritten {
		return fmt.Sprintf("%v: %s rejected, full event posted", ErrFull, e.Event.Type())
	}
	return fmt.Sprintf("%v: %s rejected, waiting for dequeue pointer update", ErrFull, e.Event.Type())
}

func (e *FullError) Unwrap() error { return ErrFull }
