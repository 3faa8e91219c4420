//go:build !linux

package guestmem

import (
	"fmt"
	"os"
)

// Map is a guest memory image file. Without mmap support the image is read
// into memory and, unless it was opened private, written back on Close.
type Map struct {
	*RAM
	path string
}

// MapFile loads the whole of path at guest address base.
func MapFile(path string, base uint64) (*Map, error) {
	m, err := MapFilePrivate(path, base)
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// MapFilePrivate loads path at guest address base. Writes never reach the
// file.
func MapFilePrivate(path string, base uint64) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("memory image %s is empty", path)
	}
	return &Map{RAM: WrapRAM(base, data)}, nil
}

// Close writes the image back to its file.
func (m *Map) Close() error {
	if m.path == "" {
		return nil
	}
	err := os.WriteFile(m.path, m.RAM.Bytes(), 0o644)
	m.path = ""
	return err
}
