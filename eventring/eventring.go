// Package eventring implements the producer side of an xHCI Event Ring.
//
// The guest describes the ring with a segment table and reports how far it
// has read by writing the dequeue pointer register. The ring is full when
// the slot after the enqueue pointer is the dequeue pointer. The last free
// slot is then filled with an Event Ring Full record and the dequeue
// pointer becomes unknown; nothing more is written until the guest moves it.
package eventring

import (
	"fmt"
	"log/slog"

	"github.com/Alia5/vxhci/events"
	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/log"
	"github.com/Alia5/vxhci/trb"
	"github.com/rcrowley/go-metrics"
)

// EventRing is one interrupter's event ring. It is not safe for concurrent
// use.
type EventRing struct {
	mem    guestmem.Memory
	logger *slog.Logger

	segments  []Segment
	segment   int
	remaining int
	enqueue   uint64
	cycle     bool

	dequeue      uint64
	dequeueKnown bool

	enqueued metrics.Counter
	rejected metrics.Counter
	full     metrics.Counter
}

// New reads tableSize segment table entries at tableAddr and returns a ring
// positioned at the first slot of the first segment, with the producer
// cycle state set and the dequeue pointer at dequeue.
func New(mem guestmem.Memory, tableAddr uint64, tableSize int, dequeue uint64, opts ...Option) (*EventRing, error) {
	o := options{
		logger:   log.Discard(),
		registry: metrics.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &EventRing{
		mem:      mem,
		logger:   o.logger.With("ring", "event"),
		enqueued: metrics.GetOrRegisterCounter("eventring.enqueued", o.registry),
		rejected: metrics.GetOrRegisterCounter("eventring.rejected", o.registry),
		full:     metrics.GetOrRegisterCounter("eventring.full", o.registry),
	}
	if err := r.UpdateSegmentTable(tableAddr, tableSize); err != nil {
		return nil, err
	}
	r.UpdateDequeuePointer(dequeue)
	return r, nil
}

// UpdateSegmentTable re-reads the segment table and restarts the ring at
// the first segment with the producer cycle state set. Only call it while
// the controller is halted. On error the ring is unchanged.
func (r *EventRing) UpdateSegmentTable(tableAddr uint64, tableSize int) error {
	segs, err := ReadSegmentTable(r.mem, tableAddr, tableSize)
	if err != nil {
		return err
	}
	r.segments = segs
	r.segment = 0
	r.remaining = int(segs[0].Size)
	r.enqueue = segs[0].Base
	r.cycle = true
	r.logger.Debug("segment table loaded", "addr", tableAddr, "segments", len(segs), "slots", r.Capacity())
	return nil
}

// UpdateDequeuePointer records that the guest has consumed every event
// before addr. It is the only way out of the full state. The low four bits
// of the register (segment index and busy flag) are ignored.
func (r *EventRing) UpdateDequeuePointer(addr uint64) {
	r.dequeue = addr &^ 0xf
	r.dequeueKnown = true
}

// nextSlot is where the enqueue pointer moves after one write.
func (r *EventRing) nextSlot() (addr uint64, segment int, wrapped bool) {
	if r.remaining > 1 {
		return r.enqueue + trb.Size, r.segment, false
	}
	segment = r.segment + 1
	if segment == len(r.segments) {
		segment, wrapped = 0, true
	}
	return r.segments[segment].Base, segment, wrapped
}

// IsFull reports whether one more write would reach the dequeue pointer.
// An unknown dequeue pointer counts as full.
func (r *EventRing) IsFull() bool {
	if !r.dequeueKnown {
		return true
	}
	next, _, _ := r.nextSlot()
	return next == r.dequeue
}

// Enqueue writes t into the next slot with the producer cycle state.
//
// When the ring is full the Event Ring Full record takes the last slot and
// t is rejected with a *FullError. Further calls keep returning *FullError
// without writing until UpdateDequeuePointer. A guest memory error leaves
// the ring unchanged.
func (r *EventRing) Enqueue(t trb.TRB) error {
	if !r.dequeueKnown {
		r.rejected.Inc(1)
		r.logger.Warn("event dropped, ring full and not yet acknowledged", "type", t.Type())
		return &FullError{Event: t}
	}
	if r.IsFull() {
		if err := r.write(events.EventRingFull()); err != nil {
			return err
		}
		r.dequeueKnown = false
		r.full.Inc(1)
		r.rejected.Inc(1)
		r.logger.Warn("event ring full", "type", t.Type(), "dequeue", r.dequeue)
		return &FullError{Event: t, SentinelWritten: true}
	}
	if err := r.write(t); err != nil {
		return err
	}
	r.enqueued.Inc(1)
	return nil
}

// write stamps the cycle bit, stores t at the enqueue pointer and advances.
func (r *EventRing) write(t trb.TRB) error {
	t = t.WithCycle(r.cycle)
	if err := guestmem.WriteTRB(r.mem, r.enqueue, t); err != nil {
		return fmt.Errorf("eventring: writing %s at %#x: %w", t.Type(), r.enqueue, err)
	}
	log.Trace(r.logger, "event written", "type", t.Type(), "addr", r.enqueue, "cycle", r.cycle)

	next, segment, wrapped := r.nextSlot()
	if segment != r.segment || wrapped {
		r.remaining = int(r.segments[segment].Size)
	} else {
		r.remaining--
	}
	r.segment = segment
	r.enqueue = next
	if wrapped {
		r.cycle = !r.cycle
	}
	return nil
}

// EnqueuePointer is the address the next event goes to.
func (r *EventRing) EnqueuePointer() uint64 { return r.enqueue }

// DequeuePointer returns the last acknowledged position; ok is false while
// the ring waits for an acknowledgement after running full.
func (r *EventRing) DequeuePointer() (addr uint64, ok bool) { return r.dequeue, r.dequeueKnown }

// CycleState is the producer cycle state stamped on the next event.
func (r *EventRing) CycleState() bool { return r.cycle }

// Segments returns a copy of the cached segment table.
func (r *EventRing) Segments() []Segment { return append([]Segment(nil), r.segments...) }

// Capacity is the total number of slots across all segments.
func (r *EventRing) Capacity() int {
	n := 0
	for _, s := range r.segments {
		n += int(s.Size)
	}
	return n
}
