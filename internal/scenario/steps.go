package scenario

import (
	"errors"
	"fmt"

	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/controller"
	"github.com/Alia5/vxhci/trb"
	"github.com/Alia5/vxhci/usb"
)

// Step actions.
const (
	ActionDoorbell          = "doorbell"
	ActionERDP              = "erdp"
	ActionAcknowledge       = "ack"
	ActionPortChange        = "port_change"
	ActionConfigureEndpoint = "configure_endpoint"
	ActionWrite             = "write"
)

// Step is one register write or guest memory update, replayed in order.
//
//	doorbell            slot, target (slot 0 is the command ring)
//	erdp                addr
//	ack                 sets ERDP to the current enqueue pointer
//	port_change         port
//	configure_endpoint  slot, dci
//	write               addr, then data or trbs (stamped with cycle)
type Step struct {
	Action string `yaml:"action" json:"action" toml:"action"`
	Slot   uint8  `yaml:"slot" json:"slot" toml:"slot"`
	Target uint8  `yaml:"target" json:"target" toml:"target"`
	DCI    uint8  `yaml:"dci" json:"dci" toml:"dci"`
	Port   uint8  `yaml:"port" json:"port" toml:"port"`
	Addr   Number `yaml:"addr" json:"addr" toml:"addr"`
	Cycle  bool   `yaml:"cycle" json:"cycle" toml:"cycle"`
	Data   Hex    `yaml:"data" json:"data" toml:"data"`
	TRBs   []TRB  `yaml:"trbs" json:"trbs" toml:"trbs"`
}

func (s Step) validate() error {
	switch s.Action {
	case ActionDoorbell, ActionAcknowledge:
	case ActionERDP:
		if s.Addr == 0 {
			return errors.New("erdp needs addr")
		}
	case ActionPortChange:
		if s.Port == 0 {
			return errors.New("port_change needs port")
		}
	case ActionConfigureEndpoint:
		if s.Slot == 0 || s.DCI == 0 {
			return errors.New("configure_endpoint needs slot and dci")
		}
	case ActionWrite:
		if (len(s.Data) == 0) == (len(s.TRBs) == 0) {
			return errors.New("write needs either data or trbs")
		}
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}

func (s Step) String() string {
	switch s.Action {
	case ActionDoorbell:
		return fmt.Sprintf("doorbell %d target %d", s.Slot, s.Target)
	case ActionERDP:
		return fmt.Sprintf("erdp %#x", uint64(s.Addr))
	case ActionPortChange:
		return fmt.Sprintf("port_change %d", s.Port)
	case ActionConfigureEndpoint:
		return fmt.Sprintf("configure_endpoint slot %d dci %d", s.Slot, s.DCI)
	case ActionWrite:
		return fmt.Sprintf("write %#x", uint64(s.Addr))
	}
	return s.Action
}

// Run programs c from the document and replays its steps. The document
// must already be laid out in mem (see Layout). It stops at the first
// step the controller rejects and returns the attached devices by port.
func (d *Document) Run(mem guestmem.Memory, c *controller.Controller) (map[uint8]usb.Device, error) {
	erdp := uint64(d.EventRing.Segments[0].Base)
	if d.EventRing.Dequeue != nil {
		erdp = uint64(*d.EventRing.Dequeue)
	}
	if err := c.SetEventRing(uint64(d.EventRing.Table), len(d.EventRing.Segments), erdp); err != nil {
		return nil, fmt.Errorf("programming event ring: %w", err)
	}
	if d.CommandRing != nil {
		c.SetCommandRing(d.CommandRing.pointer())
	}

	devices := make(map[uint8]usb.Device, len(d.Devices))
	for _, spec := range d.Devices {
		dev, err := NewDevice(spec)
		if err != nil {
			return devices, err
		}
		if err := c.Attach(spec.Port, dev); err != nil {
			return devices, fmt.Errorf("attaching device on port %d: %w", spec.Port, err)
		}
		devices[spec.Port] = dev
	}

	for i, st := range d.Steps {
		if err := d.step(mem, c, st); err != nil {
			return devices, fmt.Errorf("step %d (%s): %w", i, st, err)
		}
	}
	return devices, nil
}

func (d *Document) step(mem guestmem.Memory, c *controller.Controller, st Step) error {
	switch st.Action {
	case ActionDoorbell:
		return c.RingDoorbell(st.Slot, st.Target)
	case ActionERDP:
		return c.WriteERDP(uint64(st.Addr))
	case ActionAcknowledge:
		er := c.EventRing()
		if er == nil {
			return controller.ErrEventRingNotConfigured
		}
		return c.WriteERDP(er.EnqueuePointer())
	case ActionPortChange:
		return c.PortStatusChange(st.Port)
	case ActionConfigureEndpoint:
		ep, ok := d.Endpoint(st.Slot, st.DCI)
		if !ok {
			return fmt.Errorf("%w: no ring declared for slot %d dci %d", ErrInvalid, st.Slot, st.DCI)
		}
		return c.SetTransferRing(st.Slot, st.DCI, ep.Ring.pointer())
	case ActionWrite:
		if len(st.Data) > 0 {
			return mem.WriteAt(st.Data, uint64(st.Addr))
		}
		recs := make([]trb.TRB, len(st.TRBs))
		for i, t := range st.TRBs {
			rec, err := t.Encode(st.Cycle)
			if err != nil {
				return err
			}
			recs[i] = rec
		}
		return guestmem.WriteTRBs(mem, uint64(st.Addr), recs)
	}
	return fmt.Errorf("%w: unknown action %q", ErrInvalid, st.Action)
}
