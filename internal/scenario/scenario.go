// Package scenario describes guest memory and register activity as a
// document, so rings can be walked without a guest. A document lays out
// the event ring segment table, the command ring, transfer rings and data
// buffers in guest RAM, then lists the register writes to replay against a
// controller.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every document validation error.
var ErrInvalid = errors.New("scenario: invalid document")

// Document is the root of a scenario file.
type Document struct {
	Name        string       `yaml:"name" json:"name" toml:"name"`
	Memory      Memory       `yaml:"memory" json:"memory" toml:"memory"`
	EventRing   EventRing    `yaml:"event_ring" json:"event_ring" toml:"event_ring"`
	CommandRing *Ring        `yaml:"command_ring" json:"command_ring" toml:"command_ring"`
	Endpoints   []Endpoint   `yaml:"endpoints" json:"endpoints" toml:"endpoints"`
	Buffers     []Buffer     `yaml:"buffers" json:"buffers" toml:"buffers"`
	Devices     []DeviceSpec `yaml:"devices" json:"devices" toml:"devices"`
	Steps       []Step       `yaml:"steps" json:"steps" toml:"steps"`
}

// Memory is the guest physical window. Size defaults to 1 MiB.
type Memory struct {
	Base Number `yaml:"base" json:"base" toml:"base"`
	Size Number `yaml:"size" json:"size" toml:"size"`
}

// EventRing is interrupter 0: a segment table at Table and the initial
// dequeue pointer, which defaults to the first segment.
type EventRing struct {
	Table    Number    `yaml:"table" json:"table" toml:"table"`
	Dequeue  *Number   `yaml:"dequeue" json:"dequeue" toml:"dequeue"`
	Segments []Segment `yaml:"segments" json:"segments" toml:"segments"`
}

// Ring is a consumer ring: segments joined by Link TRBs, starting with the
// given cycle state.
type Ring struct {
	Cycle    bool      `yaml:"cycle" json:"cycle" toml:"cycle"`
	Segments []Segment `yaml:"segments" json:"segments" toml:"segments"`
}

// Segment is Size slots at Base. In a consumer ring the last slot gets a
// Link TRB to the next segment, toggling the cycle on the way back to the
// first, unless NoLink is set.
type Segment struct {
	Base   Number `yaml:"base" json:"base" toml:"base"`
	Size   int    `yaml:"size" json:"size" toml:"size"`
	NoLink bool   `yaml:"no_link" json:"no_link" toml:"no_link"`
	TRBs   []TRB  `yaml:"trbs" json:"trbs" toml:"trbs"`
}

// Endpoint is a transfer ring the controller is pointed at by a
// configure_endpoint step.
type Endpoint struct {
	Slot uint8 `yaml:"slot" json:"slot" toml:"slot"`
	DCI  uint8 `yaml:"dci" json:"dci" toml:"dci"`
	Ring Ring  `yaml:"ring" json:"ring" toml:"ring"`
}

// Buffer is raw data placed in guest memory.
type Buffer struct {
	Addr Number `yaml:"addr" json:"addr" toml:"addr"`
	Data Hex    `yaml:"data" json:"data" toml:"data"`
}

// Load reads a scenario file; the format follows the extension (.yaml,
// .yml, .toml, anything else is JSON).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse decodes and validates a document in format json, yaml or toml.
func Parse(data []byte, format string) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &doc)
	case "toml":
		err = toml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s scenario: %w", format, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

const defaultMemorySize = 1 << 20

type namedRing struct {
	name string
	ring *Ring
}

// Validate checks the parts of a document that the controller would not
// catch itself. Event ring segment sizes are left to the event ring so
// malformed tables can still be replayed.
func (d *Document) Validate() error {
	if d.Memory.Size == 0 {
		d.Memory.Size = defaultMemorySize
	}
	if len(d.EventRing.Segments) == 0 {
		return fmt.Errorf("%w: event_ring needs at least one segment", ErrInvalid)
	}
	for _, r := range d.rings() {
		if len(r.ring.Segments) == 0 {
			return fmt.Errorf("%w: %s has no segments", ErrInvalid, r.name)
		}
		for j, s := range r.ring.Segments {
			capacity := s.Size
			if !s.NoLink {
				capacity--
			}
			if s.Size <= 0 || len(s.TRBs) > capacity {
				return fmt.Errorf("%w: %s segment %d holds %d TRBs in %d slots", ErrInvalid, r.name, j, len(s.TRBs), s.Size)
			}
			for k, t := range s.TRBs {
				if _, err := t.Encode(r.ring.Cycle); err != nil {
					return fmt.Errorf("%w: %s segment %d trb %d: %v", ErrInvalid, r.name, j, k, err)
				}
			}
		}
	}
	for i, st := range d.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalid, i, err)
		}
	}
	return nil
}

func (d *Document) rings() []namedRing {
	var rings []namedRing
	if d.CommandRing != nil {
		rings = append(rings, namedRing{"command_ring", d.CommandRing})
	}
	for i := range d.Endpoints {
		ep := &d.Endpoints[i]
		rings = append(rings, namedRing{fmt.Sprintf("endpoint slot %d dci %d", ep.Slot, ep.DCI), &ep.Ring})
	}
	return rings
}

// Endpoint returns the transfer ring declared for slot and dci.
func (d *Document) Endpoint(slot, dci uint8) (*Endpoint, bool) {
	for i := range d.Endpoints {
		if d.Endpoints[i].Slot == slot && d.Endpoints[i].DCI == dci {
			return &d.Endpoints[i], true
		}
	}
	return nil, false
}
