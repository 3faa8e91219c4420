package controller

import (
	"errors"
	"fmt"

	"github.com/Alia5/vxhci/events"
	"github.com/Alia5/vxhci/ring"
	"github.com/Alia5/vxhci/trb"
	"github.com/Alia5/vxhci/usb"
)

// result is the outcome of one TD: requested and transferred count only the
// data buffers, not the Setup Stage packet.
type result struct {
	code        trb.CompletionCode
	requested   uint32
	transferred uint32
}

func (c *Controller) drainTransfers(s *slot, dci uint8, r *ring.TransferRing) error {
	if err := r.UpdateFromGuest(); err != nil {
		return fmt.Errorf("refreshing slot %d ep %d: %w", s.id, dci, err)
	}
	lap := newCircuit(r)
	for {
		td, ok, err := r.DequeueWorkItem()
		var malformed *ring.MalformedError
		switch {
		case errors.Is(err, ring.ErrCyclicIncomplete):
			c.logger.Warn("transfer ring chains never terminate", "slot", s.id, "ep", dci)
			return c.post(events.Transfer(r.DequeuePointer(), 0, trb.CompletionTRBError, s.id, dci))
		case errors.Is(err, ring.ErrIncomplete):
			return nil
		case errors.As(err, &malformed):
			var addr uint64
			if len(malformed.Entries) > 0 {
				addr = malformed.Entries[0].Addr
			}
			if err := c.post(events.Transfer(addr, 0, trb.CompletionTRBError, s.id, dci)); err != nil {
				return err
			}
			if lap.consumed() {
				return c.transferRingLapped(s, dci, r)
			}
			continue
		case err != nil:
			return err
		case !ok:
			return nil
		}

		c.transfers.Inc(1)
		if err := c.complete(s, dci, td); err != nil {
			return err
		}
		if lap.consumed() {
			return c.transferRingLapped(s, dci, r)
		}
	}
}

func (c *Controller) transferRingLapped(s *slot, dci uint8, r *ring.TransferRing) error {
	c.logger.Warn("transfer ring laps without changing ownership", "slot", s.id, "ep", dci, "dequeue", r.DequeuePointer())
	return c.post(events.Transfer(r.DequeuePointer(), 0, trb.CompletionTRBError, s.id, dci))
}

func (c *Controller) complete(s *slot, dci uint8, td ring.TransferDescriptor) error {
	res := c.run(s, dci, td)
	c.logger.Debug("transfer done", "slot", s.id, "ep", dci, "trbs", td.Len(),
		"code", res.code, "requested", res.requested, "transferred", res.transferred)
	if !wantsEvent(td, res.code) {
		return nil
	}
	if _, data, ok := td.EventData(); ok {
		return c.post(events.TransferEventData(data.Data(), res.transferred, res.code, s.id, dci))
	}
	residual := res.requested - min(res.transferred, res.requested)
	return c.post(events.Transfer(td.Last().Addr, residual, res.code, s.id, dci))
}

// wantsEvent: errors are always reported, success only on IOC and a short
// packet also on ISP.
func wantsEvent(td ring.TransferDescriptor, code trb.CompletionCode) bool {
	if code != trb.CompletionSuccess && code != trb.CompletionShortPacket {
		return true
	}
	if td.InterruptOnComplete() {
		return true
	}
	if code == trb.CompletionShortPacket {
		for _, e := range td.Entries() {
			if x, err := e.TRB.AsTransfer(); err == nil && x.InterruptOnShort() {
				return true
			}
		}
	}
	return false
}

func (c *Controller) run(s *slot, dci uint8, td ring.TransferDescriptor) result {
	if s.device == nil {
		return result{code: trb.CompletionUSBTransactionError}
	}
	if dci == 1 {
		return c.control(s.device, td)
	}

	ep, in := uint32(dci/2), dci&1 == 1
	buffers := dataBuffers(td.Entries())
	res := result{code: trb.CompletionSuccess, requested: totalLength(buffers)}
	if in {
		n, err := c.scatter(buffers, s.device.HandleTransfer(ep, usb.DirIn, nil))
		res.transferred = n
		if err != nil {
			c.logger.Warn("IN buffer not writable", "slot", s.id, "ep", dci, "err", err)
			res.code = trb.CompletionDataBufferError
			return res
		}
	} else {
		out, err := c.gather(buffers)
		if err != nil {
			c.logger.Warn("OUT buffer not readable", "slot", s.id, "ep", dci, "err", err)
			res.code = trb.CompletionDataBufferError
			return res
		}
		s.device.HandleTransfer(ep, usb.DirOut, out)
		res.transferred = uint32(len(out))
	}
	if res.transferred < res.requested {
		res.code = trb.CompletionShortPacket
	}
	return res
}

// control runs a Setup/Data/Status TD on the default control endpoint.
func (c *Controller) control(dev usb.Device, td ring.TransferDescriptor) result {
	entries := td.Entries()
	first, err := entries[0].TRB.AsTransfer()
	if err != nil || first.Type() != trb.TypeSetupStage {
		return result{code: trb.CompletionTRBError}
	}
	setup := usb.ParseSetupPacket(first.Immediate())
	buffers := dataBuffers(entries[1:])
	res := result{code: trb.CompletionSuccess, requested: totalLength(buffers)}

	if setup.DirectionIn() {
		in, ok := usb.Control(dev, setup, nil)
		if !ok {
			c.logger.Debug("control request stalled", "setup", setup)
			return result{code: trb.CompletionStallError, requested: res.requested}
		}
		n, err := c.scatter(buffers, in)
		res.transferred = n
		if err != nil {
			res.code = trb.CompletionDataBufferError
			return res
		}
	} else {
		out, err := c.gather(buffers)
		if err != nil {
			return result{code: trb.CompletionDataBufferError, requested: res.requested}
		}
		if _, ok := usb.Control(dev, setup, out); !ok {
			c.logger.Debug("control request stalled", "setup", setup)
			return result{code: trb.CompletionStallError, requested: res.requested}
		}
		res.transferred = uint32(len(out))
	}
	if res.transferred < res.requested {
		res.code = trb.CompletionShortPacket
	}
	return res
}

// dataBuffers picks the TRBs that carry data: Normal, Data Stage and Isoch.
func dataBuffers(entries []ring.Entry) []trb.Transfer {
	var out []trb.Transfer
	for _, e := range entries {
		x, err := e.TRB.AsTransfer()
		if err != nil {
			continue
		}
		switch x.Type() {
		case trb.TypeNormal, trb.TypeDataStage, trb.TypeIsoch:
			out = append(out, x)
		}
	}
	return out
}

func totalLength(buffers []trb.Transfer) uint32 {
	var n uint32
	for _, b := range buffers {
		n += b.Length()
	}
	return n
}

// gather reads the OUT payload of buffers in ring order.
func (c *Controller) gather(buffers []trb.Transfer) ([]byte, error) {
	out := make([]byte, 0, totalLength(buffers))
	for _, b := range buffers {
		n := int(b.Length())
		if b.ImmediateData() {
			imm := b.Immediate()
			out = append(out, imm[:min(n, len(imm))]...)
			continue
		}
		chunk := make([]byte, n)
		if err := c.mem.ReadAt(chunk, b.BufferPointer()); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// scatter copies an IN payload into buffers in ring order and returns how
// many bytes landed. Data beyond the buffers is dropped.
func (c *Controller) scatter(buffers []trb.Transfer, data []byte) (uint32, error) {
	var done uint32
	for _, b := range buffers {
		if len(data) == 0 {
			break
		}
		n := min(int(b.Length()), len(data))
		if err := c.mem.WriteAt(data[:n], b.BufferPointer()); err != nil {
			return done, err
		}
		done += uint32(n)
		data = data[n:]
	}
	return done, nil
}
