// Package controller is the register side of the virtual xHCI: it programs
// the rings from register writes, drains them on doorbells and posts the
// resulting events.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Alia5/vxhci/eventring"
	"github.com/Alia5/vxhci/events"
	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/log"
	"github.com/Alia5/vxhci/ring"
	"github.com/Alia5/vxhci/trb"
	"github.com/Alia5/vxhci/usb"
	"github.com/rcrowley/go-metrics"
)

const (
	// Defaults for WithMaxSlots and WithMaxPorts.
	DefaultMaxSlots = 8
	DefaultMaxPorts = 4

	// MaxEndpoints is the highest Device Context Index. DCI 1 is the
	// default control endpoint; DCI 2n is endpoint n OUT, 2n+1 endpoint n IN.
	MaxEndpoints = 31
)

type slot struct {
	id        uint8
	port      uint8
	device    usb.Device
	endpoints map[uint8]*ring.TransferRing
}

// Controller serializes register writes into ring operations. It is not
// safe for concurrent use; callers hold the register lock.
type Controller struct {
	mem      guestmem.Memory
	logger   *slog.Logger
	registry metrics.Registry
	maxSlots int
	maxPorts int

	commands *ring.CommandRing
	events   *eventring.EventRing

	ports map[uint8]usb.Device
	slots map[uint8]*slot

	commandsDone metrics.Counter
	transfers    metrics.Counter
	dropped      metrics.Counter
}

// New returns a controller over mem with no rings programmed.
func New(mem guestmem.Memory, opts ...Option) *Controller {
	o := options{
		logger:   log.Discard(),
		registry: metrics.NewRegistry(),
		maxSlots: DefaultMaxSlots,
		maxPorts: DefaultMaxPorts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		mem:          mem,
		logger:       o.logger,
		registry:     o.registry,
		maxSlots:     o.maxSlots,
		maxPorts:     o.maxPorts,
		ports:        make(map[uint8]usb.Device),
		slots:        make(map[uint8]*slot),
		commandsDone: metrics.GetOrRegisterCounter("controller.commands", o.registry),
		transfers:    metrics.GetOrRegisterCounter("controller.transfers", o.registry),
		dropped:      metrics.GetOrRegisterCounter("controller.events_dropped", o.registry),
	}
}

// SetCommandRing handles a CRCR write: bits 6-63 are the ring base, bit 0
// the ring cycle state.
func (c *Controller) SetCommandRing(crcr uint64) {
	base, cycle := crcr&^0x3f, crcr&1 != 0
	if c.commands == nil {
		c.commands = ring.NewCommandRing(c.mem, base, cycle,
			ring.WithLogger(c.logger), ring.WithRegistry(c.registry))
	} else {
		c.commands.Configure(base, cycle)
	}
	c.logger.Debug("command ring programmed", "base", base, "cycle", cycle)
}

// SetEventRing handles the interrupter 0 ERSTSZ, ERDP and ERSTBA writes.
func (c *Controller) SetEventRing(erstba uint64, erstsz int, erdp uint64) error {
	if c.events != nil {
		if err := c.events.UpdateSegmentTable(erstba, erstsz); err != nil {
			return err
		}
		c.events.UpdateDequeuePointer(erdp)
		return nil
	}
	er, err := eventring.New(c.mem, erstba, erstsz, erdp,
		eventring.WithLogger(c.logger), eventring.WithRegistry(c.registry))
	if err != nil {
		return err
	}
	c.events = er
	return nil
}

// WriteERDP handles a guest write of the event ring dequeue pointer.
func (c *Controller) WriteERDP(erdp uint64) error {
	if c.events == nil {
		return ErrEventRingNotConfigured
	}
	c.events.UpdateDequeuePointer(erdp)
	return nil
}

// SetTransferRing programs the transfer ring of endpoint dci on slot: bits
// 4-63 of dequeue are the ring base, bit 0 the dequeue cycle state.
func (c *Controller) SetTransferRing(slotID, dci uint8, dequeue uint64) error {
	s, ok := c.slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSlotNotEnabled, slotID)
	}
	if dci < 1 || dci > MaxEndpoints {
		return fmt.Errorf("%w: %d", ErrInvalidEndpoint, dci)
	}
	base, cycle := dequeue&^0xf, dequeue&1 != 0
	if r, ok := s.endpoints[dci]; ok {
		r.Configure(base, cycle)
		return nil
	}
	s.endpoints[dci] = ring.NewTransferRing(c.mem, base, cycle,
		ring.WithName(fmt.Sprintf("slot%d.ep%d", slotID, dci)),
		ring.WithLogger(c.logger.With("slot", slotID, "ep", dci)),
		ring.WithRegistry(c.registry))
	return nil
}

// Attach connects dev to a root hub port and reports the connect.
func (c *Controller) Attach(port uint8, dev usb.Device) error {
	if port < 1 || int(port) > c.maxPorts {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if _, ok := c.ports[port]; ok {
		return fmt.Errorf("%w: %d", ErrPortInUse, port)
	}
	c.ports[port] = dev
	return c.PortStatusChange(port)
}

// PortStatusChange posts a Port Status Change Event for port.
func (c *Controller) PortStatusChange(port uint8) error {
	if port < 1 || int(port) > c.maxPorts {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return c.post(events.PortStatusChange(port))
}

// RingDoorbell handles a doorbell write. Doorbell 0 drains the command ring;
// doorbell slotID drains the transfer ring of endpoint target on that slot.
func (c *Controller) RingDoorbell(slotID, target uint8) error {
	if slotID == 0 {
		return c.drainCommands()
	}
	s, ok := c.slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSlotNotEnabled, slotID)
	}
	r, ok := s.endpoints[target]
	if !ok {
		return fmt.Errorf("%w: slot %d ep %d", ErrEndpointNotConfigured, slotID, target)
	}
	return c.drainTransfers(s, target, r)
}

// post enqueues an event. A full Event Ring is flow control, not an error:
// the event is dropped and counted.
func (c *Controller) post(t trb.TRB) error {
	if c.events == nil {
		return ErrEventRingNotConfigured
	}
	err := c.events.Enqueue(t)
	var full *eventring.FullError
	if errors.As(err, &full) {
		c.dropped.Inc(1)
		c.logger.Warn("event dropped", "type", t.Type(), "full_event_posted", full.SentinelWritten)
		return nil
	}
	return err
}

// EventRing returns the interrupter 0 event ring, or nil before SetEventRing.
func (c *Controller) EventRing() *eventring.EventRing { return c.events }

// CommandRing returns the command ring, or nil before SetCommandRing.
func (c *Controller) CommandRing() *ring.CommandRing { return c.commands }

// TransferRing returns the ring of endpoint dci on slotID.
func (c *Controller) TransferRing(slotID, dci uint8) (*ring.TransferRing, bool) {
	s, ok := c.slots[slotID]
	if !ok {
		return nil, false
	}
	r, ok := s.endpoints[dci]
	return r, ok
}

// EnabledSlots lists the enabled slot ids in ascending order.
func (c *Controller) EnabledSlots() []uint8 {
	ids := make([]uint8, 0, len(c.slots))
	for id := range c.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SlotPort returns the root hub port bound to slotID, 0 if none.
func (c *Controller) SlotPort(slotID uint8) uint8 {
	if s, ok := c.slots[slotID]; ok {
		return s.port
	}
	return 0
}

// circuitRing is the dequeue state a doorbell pass watches.
type circuitRing interface {
	Len() int
	DequeueIndex() int
	CycleState() bool
}

// circuit bounds one doorbell pass to a single trip around the shadow copy.
// Without a toggling Link every slot stays owned by the consumer.
type circuit struct {
	r      circuitRing
	cycle  bool
	index  int
	walked int
}

func newCircuit(r circuitRing) *circuit {
	return &circuit{r: r, cycle: r.CycleState(), index: r.DequeueIndex()}
}

// consumed records the slots the last work item used, Links included, and
// reports whether the pass has come back around to where it started. A lap
// that flips the cycle state may still finish; a second one may not.
func (l *circuit) consumed() bool {
	n := l.r.Len()
	if n == 0 {
		return false
	}
	idx := l.r.DequeueIndex()
	d := (idx - l.index + n) % n
	if d == 0 {
		d = n
	}
	l.index = idx
	l.walked += d
	return l.walked >= n && (l.r.CycleState() == l.cycle || l.walked >= 2*n)
}
