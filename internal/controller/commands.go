package controller

import (
	"errors"
	"fmt"

	"github.com/Alia5/vxhci/events"
	"github.com/Alia5/vxhci/ring"
	"github.com/Alia5/vxhci/trb"
	"github.com/Alia5/vxhci/usb"
)

// drainCommands executes every command the guest has queued. A command
// whose TRBs are still being written stays on the ring for the next
// doorbell.
func (c *Controller) drainCommands() error {
	if c.commands == nil {
		return ErrCommandRingNotConfigured
	}
	if err := c.commands.UpdateFromGuest(); err != nil {
		return fmt.Errorf("refreshing command ring: %w", err)
	}
	lap := newCircuit(c.commands)
	for {
		cmd, ok, err := c.commands.DequeueWorkItem()
		var malformed *ring.MalformedError
		switch {
		case errors.Is(err, ring.ErrCyclicIncomplete):
			c.logger.Warn("command ring chains never terminate", "dequeue", c.commands.DequeuePointer())
			return c.post(events.CommandCompletion(c.commands.DequeuePointer(), trb.CompletionTRBError, 0))
		case errors.Is(err, ring.ErrIncomplete):
			return nil
		case errors.As(err, &malformed):
			c.logger.Warn("malformed command", "addr", malformed.Entries[0].Addr, "err", malformed.Err)
			if err := c.post(events.CommandCompletion(malformed.Entries[0].Addr, trb.CompletionTRBError, 0)); err != nil {
				return err
			}
			if lap.consumed() {
				return c.commandRingLapped()
			}
			continue
		case err != nil:
			return err
		case !ok:
			return nil
		}

		code, slotID := c.execute(cmd)
		c.commandsDone.Inc(1)
		c.logger.Debug("command completed", "type", cmd.Type(), "addr", cmd.Addr(), "code", code, "slot", slotID)
		if err := c.post(events.CommandCompletion(cmd.Addr(), code, slotID)); err != nil {
			return err
		}
		if lap.consumed() {
			return c.commandRingLapped()
		}
	}
}

func (c *Controller) commandRingLapped() error {
	c.logger.Warn("command ring laps without changing ownership", "dequeue", c.commands.DequeuePointer())
	return c.post(events.CommandCompletion(c.commands.DequeuePointer(), trb.CompletionTRBError, 0))
}

func (c *Controller) execute(d ring.CommandDescriptor) (trb.CompletionCode, uint8) {
	cmd, err := d.Command()
	if err != nil {
		return trb.CompletionTRBError, 0
	}
	switch cmd.Type() {
	case trb.TypeNoOpCmd:
		return trb.CompletionSuccess, 0
	case trb.TypeEnableSlotCmd:
		return c.enableSlot()
	case trb.TypeDisableSlotCmd:
		return c.disableSlot(cmd.SlotID())
	default:
		return trb.CompletionTRBError, 0
	}
}

// enableSlot hands out the lowest free slot id and binds it to the
// lowest-numbered port whose device has no slot yet.
func (c *Controller) enableSlot() (trb.CompletionCode, uint8) {
	var id uint8
	for i := 1; i <= c.maxSlots; i++ {
		if _, used := c.slots[uint8(i)]; !used {
			id = uint8(i)
			break
		}
	}
	if id == 0 {
		return trb.CompletionNoSlotsAvailableError, 0
	}

	s := &slot{id: id, endpoints: make(map[uint8]*ring.TransferRing)}
	s.port, s.device = c.unboundPort()
	c.slots[id] = s
	c.logger.Info("slot enabled", "slot", id, "port", s.port)
	return trb.CompletionSuccess, id
}

func (c *Controller) unboundPort() (uint8, usb.Device) {
	for p := 1; p <= c.maxPorts; p++ {
		dev, ok := c.ports[uint8(p)]
		if !ok {
			continue
		}
		bound := false
		for _, s := range c.slots {
			if s.port == uint8(p) {
				bound = true
				break
			}
		}
		if !bound {
			return uint8(p), dev
		}
	}
	return 0, nil
}

func (c *Controller) disableSlot(id uint8) (trb.CompletionCode, uint8) {
	if _, ok := c.slots[id]; !ok {
		return trb.CompletionSlotNotEnabledError, id
	}
	delete(c.slots, id)
	c.logger.Info("slot disabled", "slot", id)
	return trb.CompletionSuccess, id
}
