package scenario

import (
	"fmt"

	"github.com/Alia5/vxhci/trb"
	"github.com/Alia5/vxhci/usb"
)

// TRB describes one record by its type name (as printed by trb.Type, e.g.
// "Normal", "SetupStage", "EnableSlotCmd"). Fields that do not apply to the
// type are ignored. Cycle defaults to the ring's cycle state so the record
// is owned by the consumer.
type TRB struct {
	Type     string `yaml:"type" json:"type" toml:"type"`
	Cycle    *bool  `yaml:"cycle" json:"cycle" toml:"cycle"`
	Chain    bool   `yaml:"chain" json:"chain" toml:"chain"`
	IOC      bool   `yaml:"ioc" json:"ioc" toml:"ioc"`
	ISP      bool   `yaml:"isp" json:"isp" toml:"isp"`
	Toggle   bool   `yaml:"toggle" json:"toggle" toml:"toggle"`
	In       bool   `yaml:"in" json:"in" toml:"in"`
	Length   uint32 `yaml:"length" json:"length" toml:"length"`
	Pointer  Number `yaml:"pointer" json:"pointer" toml:"pointer"`
	Data     Hex    `yaml:"data" json:"data" toml:"data"`
	Setup    *Setup `yaml:"setup" json:"setup" toml:"setup"`
	Slot     uint8  `yaml:"slot" json:"slot" toml:"slot"`
	Endpoint uint8  `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
}

// Setup is the request carried inline by a SetupStage TRB.
type Setup struct {
	RequestType uint8  `yaml:"request_type" json:"request_type" toml:"request_type"`
	Request     uint8  `yaml:"request" json:"request" toml:"request"`
	Value       uint16 `yaml:"value" json:"value" toml:"value"`
	Index       uint16 `yaml:"index" json:"index" toml:"index"`
	Length      uint16 `yaml:"length" json:"length" toml:"length"`
}

func (s Setup) packet() usb.SetupPacket {
	return usb.SetupPacket{RequestType: s.RequestType, Request: s.Request, Value: s.Value, Index: s.Index, Length: s.Length}
}

// Encode builds the wire record. ringCycle is used when Cycle is unset.
func (t TRB) Encode(ringCycle bool) (trb.TRB, error) {
	typ, err := trb.ParseType(t.Type)
	if err != nil {
		return trb.TRB{}, fmt.Errorf("scenario: %w", err)
	}
	cycle := ringCycle
	if t.Cycle != nil {
		cycle = *t.Cycle
	}

	switch {
	case typ.IsTransfer():
		return t.transfer(typ).WithCycle(cycle).Raw(), nil
	case typ == trb.TypeLink:
		return trb.NewLink(uint64(t.Pointer), t.Toggle).WithChain(t.Chain).WithCycle(cycle).Raw(), nil
	case typ == trb.TypeEventData:
		return trb.NewEventData(uint64(t.Pointer)).WithChain(t.Chain).WithInterruptOnComplete(t.IOC).
			WithCycle(cycle).Raw(), nil
	case typ.IsCommand():
		rec := trb.NewCommand(typ).WithPointer(uint64(t.Pointer)).WithSlotID(t.Slot).
			WithEndpointID(t.Endpoint).WithCycle(cycle).Raw()
		if t.Chain {
			// Commands never chain; allowed here to replay broken drivers.
			rec.Control |= 1 << 4
		}
		return rec, nil
	default:
		rec := trb.New(typ).WithCycle(cycle)
		rec.Parameter = uint64(t.Pointer)
		if t.Chain {
			rec.Control |= 1 << 4
		}
		return rec, nil
	}
}

func (t TRB) transfer(typ trb.Type) trb.Transfer {
	x := trb.NewTransfer(typ).
		WithBufferPointer(uint64(t.Pointer)).
		WithLength(t.Length).
		WithChain(t.Chain).
		WithInterruptOnComplete(t.IOC).
		WithInterruptOnShort(t.ISP)

	switch {
	case typ == trb.TypeSetupStage && t.Setup != nil:
		x = x.WithImmediate(t.Setup.packet().Bytes()).WithLength(8)
		switch {
		case t.Setup.Length == 0:
			x = x.WithTransferType(0)
		case t.Setup.RequestType&0x80 != 0:
			x = x.WithTransferType(3)
		default:
			x = x.WithTransferType(2)
		}
	case len(t.Data) > 0:
		var imm [8]byte
		n := copy(imm[:], t.Data)
		x = x.WithImmediate(imm)
		if t.Length == 0 {
			x = x.WithLength(uint32(n))
		}
	}
	if typ == trb.TypeDataStage {
		x = x.WithDirectionIn(t.In)
	}
	return x
}
