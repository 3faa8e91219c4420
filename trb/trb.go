// Package trb implements the xHCI Transfer Request Block wire record.
//
// A TRB is 16 bytes, little-endian: an 8-byte parameter, a 4-byte status and
// a 4-byte control word. The meaning of status and control depends on the
// 6-bit type tag, which, like the cycle bit, sits at the same place in every
// interpretation:
//
//	 0                                                              63
//	|-------------------------- Parameter ---------------------------|
//	 64              95 96                                         127
//	|----- Status -----|--- Control: C(0) ... Type(10-15) ... -------|
package trb

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Size is the length of one TRB in guest memory.
const Size = 16

const (
	controlCycle     = 1 << 0
	controlChain     = 1 << 4
	controlTypeShift = 10
	controlTypeMask  = 0x3f << controlTypeShift
)

// ErrShortRecord is returned when decoding fewer than Size bytes.
var ErrShortRecord = errors.New("trb: record shorter than 16 bytes")

// TRB is one raw ring record. The typed views in this package give access to
// the type specific fields.
type TRB struct {
	Parameter uint64
	Status    uint32
	Control   uint32
}

// New returns a TRB with the given type tag and every other bit clear.
func New(t Type) TRB {
	return TRB{Control: uint32(t)<<controlTypeShift&controlTypeMask}
}

// Type returns the type tag (control bits 10-15).
func (t TRB) Type() Type {
	return Type((t.Control & controlTypeMask) >> controlTypeShift)
}

// WithType returns a copy of t carrying tag typ.
func (t TRB) WithType(typ Type) TRB {
	t.Control = t.Control&^controlTypeMask | uint32(typ)<<controlTypeShift&controlTypeMask
	return t
}

// Cycle returns the cycle bit (control bit 0).
func (t TRB) Cycle() bool {
	return t.Control&controlCycle != 0
}

// WithCycle returns a copy of t with the cycle bit set to c.
func (t TRB) WithCycle(c bool) TRB {
	t.Control = setBit(t.Control, controlCycle, c)
	return t
}

// ChainBit reports control bit 4. It is the chain flag for transfer TRBs and
// Link TRBs; on every other type the bit is reserved and a ring walker treats
// it the same way, so a stray bit never silently merges records.
func (t TRB) ChainBit() bool {
	return t.Control&controlChain != 0
}

// String formats the type tag, cycle bit and raw words.
func (t TRB) String() string {
	return fmt.Sprintf("%s{param=%#x status=%#x control=%#x c=%d}",
		t.Type(), t.Parameter, t.Status, t.Control, t.Control&controlCycle)
}

// Unmarshal decodes the first 16 bytes of b.
func Unmarshal(b []byte) (TRB, error) {
	if len(b) < Size {
		return TRB{}, ErrShortRecord
	}
	return TRB{
		Parameter: binary.LittleEndian.Uint64(b[0:8]),
		Status:    binary.LittleEndian.Uint32(b[8:12]),
		Control:   binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// PutBytes encodes t into the first 16 bytes of b.
func (t TRB) PutBytes(b []byte) error {
	if len(b) < Size {
		return ErrShortRecord
	}
	binary.LittleEndian.PutUint64(b[0:8], t.Parameter)
	binary.LittleEndian.PutUint32(b[8:12], t.Status)
	binary.LittleEndian.PutUint32(b[12:16], t.Control)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (t TRB) MarshalBinary() ([]byte, error) {
	var buf [Size]byte
	_ = t.PutBytes(buf[:])
	return buf[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *TRB) UnmarshalBinary(b []byte) error {
	v, err := Unmarshal(b)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalSlice decodes len(b)/16 consecutive records.
func UnmarshalSlice(b []byte) ([]TRB, error) {
	if len(b)%Size != 0 {
		return nil, fmt.Errorf("trb: %d bytes is not a whole number of records", len(b))
	}
	out := make([]TRB, len(b)/Size)
	for i := range out {
		out[i], _ = Unmarshal(b[i*Size:])
	}
	return out, nil
}

// MarshalSlice encodes ts back to back.
func MarshalSlice(ts []TRB) []byte {
	out := make([]byte, len(ts)*Size)
	for i, t := range ts {
		_ = t.PutBytes(out[i*Size:])
	}
	return out
}

func setBit(v, mask uint32, on bool) uint32 {
	if on {
		return v | mask
	}
	return v &^ mask
}

func field(v uint32, shift, width uint) uint32 {
	return (v >> shift) & (1<<width - 1)
}

func setField(v uint32, shift, width uint, x uint32) uint32 {
	m := uint32(1<<width-1) << shift
	return v&^m | (x<<shift)&m
}
