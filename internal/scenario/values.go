package scenario

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is an address or size. Documents may write it as a plain integer
// or as a string in any Go integer syntax ("0x1000", "4096").
type Number uint64

func (n *Number) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(string(b)), "_", ""), 0, 64)
	if err != nil {
		return fmt.Errorf("scenario: bad number %q: %w", b, err)
	}
	*n = Number(v)
	return nil
}

func (n *Number) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	return n.UnmarshalText(b)
}

func (n Number) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%#x", uint64(n))), nil
}

// Hex is a byte string written as hex digits; spaces and colons are
// ignored.
type Hex []byte

func (h *Hex) UnmarshalText(b []byte) error {
	clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(string(b))
	out, err := hex.DecodeString(strings.TrimPrefix(clean, "0x"))
	if err != nil {
		return fmt.Errorf("scenario: bad hex %q: %w", b, err)
	}
	*h = out
	return nil
}

func (h Hex) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}
