// Package guestmem is the guest physical memory service the ring engine
// reads descriptors from and writes events to.
package guestmem

import (
	"errors"
	"fmt"

	"github.com/Alia5/vxhci/trb"
)

// ErrBadAddress is wrapped by every failed guest access.
var ErrBadAddress = errors.New("guest address out of range")

// AccessError records the guest access that failed.
type AccessError struct {
	Op   string
	Addr uint64
	Len  int
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("guest %s of %d bytes at %#x: %v", e.Op, e.Len, e.Addr, ErrBadAddress)
}

func (e *AccessError) Unwrap() error { return ErrBadAddress }

// Memory is guest physical memory. Implementations must fail the whole
// access, never return partial data.
type Memory interface {
	ReadAt(p []byte, addr uint64) error
	WriteAt(p []byte, addr uint64) error
}

// ReadTRB reads one record at addr.
func ReadTRB(m Memory, addr uint64) (trb.TRB, error) {
	var buf [trb.Size]byte
	if err := m.ReadAt(buf[:], addr); err != nil {
		return trb.TRB{}, err
	}
	return trb.Unmarshal(buf[:])
}

// ReadTRBs reads count consecutive records starting at addr.
func ReadTRBs(m Memory, addr uint64, count int) ([]trb.TRB, error) {
	if count < 0 {
		return nil, &AccessError{Op: "read", Addr: addr, Len: count}
	}
	buf := make([]byte, count*trb.Size)
	if err := m.ReadAt(buf, addr); err != nil {
		return nil, err
	}
	return trb.UnmarshalSlice(buf)
}

// WriteTRB writes one record at addr.
func WriteTRB(m Memory, addr uint64, t trb.TRB) error {
	var buf [trb.Size]byte
	_ = t.PutBytes(buf[:])
	return m.WriteAt(buf[:], addr)
}

// WriteTRBs writes ts back to back starting at addr.
func WriteTRBs(m Memory, addr uint64, ts []trb.TRB) error {
	return m.WriteAt(trb.MarshalSlice(ts), addr)
}
