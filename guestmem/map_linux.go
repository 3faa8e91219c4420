//go:build linux

package guestmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map is a guest memory image file mapped into the process. A shared map
// writes straight to the file; a private one keeps its writes in memory.
type Map struct {
	*RAM
	data []byte
}

// MapFile maps the whole of path shared at guest address base.
func MapFile(path string, base uint64) (*Map, error) {
	return mapFile(path, base, true)
}

// MapFilePrivate maps path copy-on-write: the guest sees the image but
// writes never reach the file.
func MapFilePrivate(path string, base uint64) (*Map, error) {
	return mapFile(path, base, false)
}

func mapFile(path string, base uint64, shared bool) (*Map, error) {
	mode, flags := os.O_RDWR, unix.MAP_SHARED
	if !shared {
		mode, flags = os.O_RDONLY, unix.MAP_PRIVATE
	}
	f, err := os.OpenFile(path, mode, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("memory image %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Map{RAM: WrapRAM(base, data), data: data}, nil
}

// Close unmaps the image. The Map must not be used afterwards.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	m.RAM = WrapRAM(m.RAM.Base(), nil)
	return err
}
