package scenario

import (
	"fmt"

	"github.com/Alia5/vxhci/eventring"
	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/trb"
)

// pointer is the CRCR / TR dequeue value that starts r at its first
// segment.
func (r *Ring) pointer() uint64 {
	p := uint64(r.Segments[0].Base)
	if r.Cycle {
		p |= 1
	}
	return p
}

// encode returns the records of every segment of r. Free slots carry the
// inverted cycle bit so the consumer sees them as empty.
func (r *Ring) encode() ([][]trb.TRB, error) {
	out := make([][]trb.TRB, len(r.Segments))
	for i, s := range r.Segments {
		recs := make([]trb.TRB, s.Size)
		for j := range recs {
			recs[j] = trb.TRB{}.WithCycle(!r.Cycle)
		}
		for j, t := range s.TRBs {
			rec, err := t.Encode(r.Cycle)
			if err != nil {
				return nil, fmt.Errorf("segment %d trb %d: %w", i, j, err)
			}
			recs[j] = rec
		}
		if !s.NoLink {
			next := (i + 1) % len(r.Segments)
			recs[s.Size-1] = trb.NewLink(uint64(r.Segments[next].Base), next == 0).WithCycle(r.Cycle).Raw()
		}
		out[i] = recs
	}
	return out, nil
}

// NewRAM allocates the guest window the document describes.
func (d *Document) NewRAM() *guestmem.RAM {
	return guestmem.NewRAM(uint64(d.Memory.Base), int(d.Memory.Size))
}

// Layout writes the event ring segment table, every consumer ring and the
// data buffers into mem. Event ring segments are left as mem holds them.
func (d *Document) Layout(mem guestmem.Memory) error {
	segs := make([]eventring.Segment, len(d.EventRing.Segments))
	for i, s := range d.EventRing.Segments {
		segs[i] = eventring.Segment{Base: uint64(s.Base), Size: uint16(s.Size)}
	}
	if err := eventring.WriteSegmentTable(mem, uint64(d.EventRing.Table), segs); err != nil {
		return fmt.Errorf("writing event ring segment table: %w", err)
	}

	for _, r := range d.rings() {
		segments, err := r.ring.encode()
		if err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		for i, recs := range segments {
			if err := guestmem.WriteTRBs(mem, uint64(r.ring.Segments[i].Base), recs); err != nil {
				return fmt.Errorf("%s segment %d: %w", r.name, i, err)
			}
		}
	}

	for _, b := range d.Buffers {
		if err := mem.WriteAt(b.Data, uint64(b.Addr)); err != nil {
			return fmt.Errorf("buffer at %#x: %w", uint64(b.Addr), err)
		}
	}
	return nil
}

// Event is a record found in an event ring segment.
type Event struct {
	Addr  uint64
	Event trb.Event
}

// Events returns the records in er's segments that carry an event type,
// in segment order. Slots never written read as zero and are skipped.
func Events(mem guestmem.Memory, er *eventring.EventRing) ([]Event, error) {
	var out []Event
	for _, s := range er.Segments() {
		recs, err := guestmem.ReadTRBs(mem, s.Base, int(s.Size))
		if err != nil {
			return out, err
		}
		for i, rec := range recs {
			ev, err := rec.AsEvent()
			if err != nil {
				continue
			}
			out = append(out, Event{Addr: s.Slot(i), Event: ev})
		}
	}
	return out, nil
}
