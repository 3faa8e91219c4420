package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger dumps guest memory traffic with optional file output.
type RawLogger interface {
	// Log records one access. write=false is a guest->host read,
	// write=true a host->guest write.
	Log(write bool, addr uint64, data []byte)
}

// rawLogger implements RawLogger with thread-safe output.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If writer is nil, returns a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits one line per access with a timestamp and a hex dump, grouping
// the bytes in 16-byte records so TRBs line up.
func (r *rawLogger) Log(write bool, addr uint64, data []byte) {
	if len(data) == 0 || r.w == nil {
		return
	}

	dir := "G->H"
	if write {
		dir = "H->G"
	}

	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				hexbuf.WriteString(" |")
			}
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}

	line := fmt.Sprintf("%s %s %#010x: %d bytes, hex: %s\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		addr,
		len(data),
		hexbuf.String())

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}
