package eventring

import (
	"encoding/binary"
	"fmt"

	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/trb"
)

// Event Ring Segment Table entry layout (xHCI 1.2 section 6.5).
//
//	0      8      10         16
//	| base | size | reserved |
const (
	// SegmentEntrySize is the length of one segment table entry.
	SegmentEntrySize = 16

	// MinSegmentSize and MaxSegmentSize bound a segment in TRBs.
	MinSegmentSize = 16
	MaxSegmentSize = 4096

	segmentBaseMask = ^uint64(0x3f)
)

// Segment is one row of the segment table: a run of Size TRB slots at Base.
type Segment struct {
	Base uint64
	Size uint16
}

// Slot returns the guest address of slot i.
func (s Segment) Slot(i int) uint64 { return s.Base + uint64(i)*trb.Size }

// End is the address just past the last slot.
func (s Segment) End() uint64 { return s.Slot(int(s.Size)) }

// Contains reports whether addr is one of the segment's slots.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Base && addr < s.End() && (addr-s.Base)%trb.Size == 0
}

func (s Segment) validate() error {
	if s.Size < MinSegmentSize || s.Size > MaxSegmentSize {
		return fmt.Errorf("%w: %d slots at %#x", ErrSegmentSize, s.Size, s.Base)
	}
	return nil
}

// MarshalBinary encodes the segment as a table entry.
func (s Segment) MarshalBinary() ([]byte, error) {
	b := make([]byte, SegmentEntrySize)
	binary.LittleEndian.PutUint64(b[0:8], s.Base&segmentBaseMask)
	binary.LittleEndian.PutUint16(b[8:10], s.Size)
	return b, nil
}

// UnmarshalBinary decodes a table entry. The low six base bits and the
// reserved bytes are ignored.
func (s *Segment) UnmarshalBinary(b []byte) error {
	if len(b) < SegmentEntrySize {
		return fmt.Errorf("eventring: segment entry needs %d bytes, got %d", SegmentEntrySize, len(b))
	}
	s.Base = binary.LittleEndian.Uint64(b[0:8]) & segmentBaseMask
	s.Size = binary.LittleEndian.Uint16(b[8:10])
	return nil
}

// ReadSegmentTable reads and validates count entries at addr.
func ReadSegmentTable(mem guestmem.Memory, addr uint64, count int) ([]Segment, error) {
	if count <= 0 {
		return nil, ErrEmptySegmentTable
	}
	buf := make([]byte, count*SegmentEntrySize)
	if err := mem.ReadAt(buf, addr); err != nil {
		return nil, fmt.Errorf("eventring: reading segment table: %w", err)
	}
	segs := make([]Segment, count)
	for i := range segs {
		if err := segs[i].UnmarshalBinary(buf[i*SegmentEntrySize:]); err != nil {
			return nil, err
		}
		if err := segs[i].validate(); err != nil {
			return nil, fmt.Errorf("eventring: segment %d: %w", i, err)
		}
	}
	return segs, nil
}

// WriteSegmentTable lays out segs at addr the way a guest driver would.
func WriteSegmentTable(mem guestmem.Memory, addr uint64, segs []Segment) error {
	buf := make([]byte, 0, len(segs)*SegmentEntrySize)
	for _, s := range segs {
		b, _ := s.MarshalBinary()
		buf = append(buf, b...)
	}
	return mem.WriteAt(buf, addr)
}
