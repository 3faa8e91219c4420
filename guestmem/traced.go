package guestmem

import "github.com/Alia5/vxhci/internal/log"

// Traced forwards to an inner Memory and dumps every successful access.
type Traced struct {
	Memory
	raw log.RawLogger
}

// NewTraced wraps m. A nil raw logger disables the dump.
func NewTraced(m Memory, raw log.RawLogger) *Traced {
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Traced{Memory: m, raw: raw}
}

func (t *Traced) ReadAt(p []byte, addr uint64) error {
	if err := t.Memory.ReadAt(p, addr); err != nil {
		return err
	}
	t.raw.Log(false, addr, p)
	return nil
}

func (t *Traced) WriteAt(p []byte, addr uint64) error {
	if err := t.Memory.WriteAt(p, addr); err != nil {
		return err
	}
	t.raw.Log(true, addr, p)
	return nil
}
