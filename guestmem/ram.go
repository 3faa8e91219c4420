package guestmem

// RAM is a window of guest physical memory [Base, Base+len(buf)) backed by a
// byte slice.
type RAM struct {
	base uint64
	buf  []byte
}

// NewRAM allocates size zeroed bytes mapped at base.
func NewRAM(base uint64, size int) *RAM {
	return &RAM{base: base, buf: make([]byte, size)}
}

// WrapRAM maps an existing buffer at base. The buffer is not copied.
func WrapRAM(base uint64, buf []byte) *RAM {
	return &RAM{base: base, buf: buf}
}

// Base is the guest address of the first byte.
func (r *RAM) Base() uint64 { return r.base }

// Size is the window length in bytes.
func (r *RAM) Size() int { return len(r.buf) }

// Bytes exposes the backing slice.
func (r *RAM) Bytes() []byte { return r.buf }

// Contains reports whether [addr, addr+n) lies inside the window.
func (r *RAM) Contains(addr uint64, n int) bool {
	_, ok := r.offset(addr, n)
	return ok
}

func (r *RAM) offset(addr uint64, n int) (uint64, bool) {
	if n < 0 || addr < r.base {
		return 0, false
	}
	off := addr - r.base
	size := uint64(len(r.buf))
	if off > size || uint64(n) > size-off {
		return 0, false
	}
	return off, true
}

// ReadAt copies len(p) bytes at addr into p.
func (r *RAM) ReadAt(p []byte, addr uint64) error {
	off, ok := r.offset(addr, len(p))
	if !ok {
		return &AccessError{Op: "read", Addr: addr, Len: len(p)}
	}
	copy(p, r.buf[off:])
	return nil
}

// WriteAt copies p to addr.
func (r *RAM) WriteAt(p []byte, addr uint64) error {
	off, ok := r.offset(addr, len(p))
	if !ok {
		return &AccessError{Op: "write", Addr: addr, Len: len(p)}
	}
	copy(r.buf[off:], p)
	return nil
}
