package trb

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned by an As* conversion on the wrong tag.
	ErrTypeMismatch = errors.New("trb: type tag does not match the requested view")

	// ErrUnknownType is returned by Parse for a reserved or vendor tag.
	ErrUnknownType = errors.New("trb: unknown type tag")
)

// View is a typed interpretation of a TRB. Views are only obtained through
// Parse or the As* conversions, which check the type tag first.
type View interface {
	Raw() TRB
	Type() Type
}

// Parse reads the tag of t and returns the matching view.
func Parse(t TRB) (View, error) {
	typ := t.Type()
	switch {
	case typ.IsTransfer():
		return Transfer{t}, nil
	case typ == TypeLink:
		return Link{t}, nil
	case typ == TypeEventData:
		return EventData{t}, nil
	case typ == TypeNoOp:
		return NoOp{t}, nil
	case typ.IsCommand():
		return Command{t}, nil
	case typ.IsEvent():
		return Event{t}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(typ))
}

func mismatch(t TRB, want string) error {
	return fmt.Errorf("%w: %s is not a %s TRB", ErrTypeMismatch, t.Type(), want)
}

// AsTransfer views t as a Normal, Setup, Data, Status or Isoch TRB.
func (t TRB) AsTransfer() (Transfer, error) {
	if !t.Type().IsTransfer() {
		return Transfer{}, mismatch(t, "transfer")
	}
	return Transfer{t}, nil
}

// AsLink views t as a Link TRB.
func (t TRB) AsLink() (Link, error) {
	if t.Type() != TypeLink {
		return Link{}, mismatch(t, "link")
	}
	return Link{t}, nil
}

// AsEventData views t as an Event Data TRB.
func (t TRB) AsEventData() (EventData, error) {
	if t.Type() != TypeEventData {
		return EventData{}, mismatch(t, "event data")
	}
	return EventData{t}, nil
}

// AsCommand views t as a command ring TRB.
func (t TRB) AsCommand() (Command, error) {
	if !t.Type().IsCommand() {
		return Command{}, mismatch(t, "command")
	}
	return Command{t}, nil
}

// AsEvent views t as an event ring TRB.
func (t TRB) AsEvent() (Event, error) {
	if !t.Type().IsEvent() {
		return Event{}, mismatch(t, "event")
	}
	return Event{t}, nil
}

// Transfer status and control layout.
const (
	xferLengthShift = 0
	xferLengthWidth = 17
	tdSizeShift     = 17
	tdSizeWidth     = 5
	intrTargetShift = 22
	intrTargetWidth = 10

	xferENT = 1 << 1
	xferISP = 1 << 2
	xferNS  = 1 << 3
	xferIOC = 1 << 5
	xferIDT = 1 << 6
	xferBEI = 1 << 9

	setupTRTShift = 16
	setupTRTWidth = 2
	dataDirIn     = 1 << 16
)

// MaxTransferLength is the largest length a single transfer TRB can carry.
const MaxTransferLength = 1<<xferLengthWidth - 1

// Transfer is the view shared by the data-carrying transfer TRBs.
type Transfer struct{ raw TRB }

// NewTransfer returns an empty transfer TRB of type typ. It panics if typ is
// not a transfer type; it is meant for building rings in tests and tools.
func NewTransfer(typ Type) Transfer {
	if !typ.IsTransfer() {
		panic("trb: NewTransfer with non-transfer type " + typ.String())
	}
	return Transfer{New(typ)}
}

// Raw returns the underlying record.
func (x Transfer) Raw() TRB { return x.raw }

// Type is the transfer TRB type tag.
func (x Transfer) Type() Type { return x.raw.Type() }

// BufferPointer is the data buffer address, unless IDT is set.
func (x Transfer) BufferPointer() uint64 { return x.raw.Parameter }

// Immediate returns the parameter as inline data (Setup Stage, or IDT set).
func (x Transfer) Immediate() [8]byte {
	var b [8]byte
	for i := range b {
		b[i] = byte(x.raw.Parameter >> (8 * i))
	}
	return b
}

// Length is the TRB Transfer Length (status bits 0-16).
func (x Transfer) Length() uint32 {
	return field(x.raw.Status, xferLengthShift, xferLengthWidth)
}

// TDSize is the remaining-packets hint (status bits 17-21).
func (x Transfer) TDSize() uint32 { return field(x.raw.Status, tdSizeShift, tdSizeWidth) }

// InterrupterTarget is status bits 22-31.
func (x Transfer) InterrupterTarget() uint32 {
	return field(x.raw.Status, intrTargetShift, intrTargetWidth)
}

// Chain reports the CH bit: the TD continues in the next TRB.
func (x Transfer) Chain() bool { return x.raw.ChainBit() }

// EvaluateNext reports the ENT bit.
func (x Transfer) EvaluateNext() bool { return x.raw.Control&xferENT != 0 }

// InterruptOnShort reports the ISP bit.
func (x Transfer) InterruptOnShort() bool { return x.raw.Control&xferISP != 0 }

// NoSnoop reports the NS bit.
func (x Transfer) NoSnoop() bool { return x.raw.Control&xferNS != 0 }

// InterruptOnComplete reports the IOC bit.
func (x Transfer) InterruptOnComplete() bool { return x.raw.Control&xferIOC != 0 }

// ImmediateData reports the IDT bit: the parameter holds the data.
func (x Transfer) ImmediateData() bool { return x.raw.Control&xferIDT != 0 }

// BlockEventInterrupt reports the BEI bit.
func (x Transfer) BlockEventInterrupt() bool { return x.raw.Control&xferBEI != 0 }

// TransferType is the Setup Stage TRT field (0 no data, 2 OUT, 3 IN).
func (x Transfer) TransferType() uint32 {
	return field(x.raw.Control, setupTRTShift, setupTRTWidth)
}

// DirectionIn is the Data Stage DIR bit.
func (x Transfer) DirectionIn() bool { return x.raw.Control&dataDirIn != 0 }

// WithBufferPointer sets the data buffer address.
func (x Transfer) WithBufferPointer(p uint64) Transfer {
	x.raw.Parameter = p
	return x
}

// WithImmediate stores b as inline data and sets IDT.
func (x Transfer) WithImmediate(b [8]byte) Transfer {
	var p uint64
	for i := range b {
		p |= uint64(b[i]) << (8 * i)
	}
	x.raw.Parameter = p
	x.raw.Control |= xferIDT
	return x
}

// WithLength sets the TRB Transfer Length.
func (x Transfer) WithLength(n uint32) Transfer {
	x.raw.Status = setField(x.raw.Status, xferLengthShift, xferLengthWidth, n)
	return x
}

// WithTDSize sets the TD Size field.
func (x Transfer) WithTDSize(n uint32) Transfer {
	x.raw.Status = setField(x.raw.Status, tdSizeShift, tdSizeWidth, n)
	return x
}

// WithInterrupterTarget sets the interrupter the event goes to.
func (x Transfer) WithInterrupterTarget(n uint32) Transfer {
	x.raw.Status = setField(x.raw.Status, intrTargetShift, intrTargetWidth, n)
	return x
}

// WithChain sets or clears the CH bit.
func (x Transfer) WithChain(on bool) Transfer {
	x.raw.Control = setBit(x.raw.Control, controlChain, on)
	return x
}

// WithInterruptOnComplete sets or clears the IOC bit.
func (x Transfer) WithInterruptOnComplete(on bool) Transfer {
	x.raw.Control = setBit(x.raw.Control, xferIOC, on)
	return x
}

// WithInterruptOnShort sets or clears the ISP bit.
func (x Transfer) WithInterruptOnShort(on bool) Transfer {
	x.raw.Control = setBit(x.raw.Control, xferISP, on)
	return x
}

// WithTransferType sets the Setup Stage TRT field.
func (x Transfer) WithTransferType(trt uint32) Transfer {
	x.raw.Control = setField(x.raw.Control, setupTRTShift, setupTRTWidth, trt)
	return x
}

// WithDirectionIn sets or clears the Data Stage DIR bit.
func (x Transfer) WithDirectionIn(in bool) Transfer {
	x.raw.Control = setBit(x.raw.Control, dataDirIn, in)
	return x
}

// WithCycle sets the cycle bit.
func (x Transfer) WithCycle(c bool) Transfer {
	x.raw = x.raw.WithCycle(c)
	return x
}

const (
	linkToggleCycle = 1 << 1
	linkIOC         = 1 << 5
	linkTargetMask  = ^uint64(0xf)
)

// Link redirects a consumer to another ring segment.
type Link struct{ raw TRB }

// NewLink returns a Link TRB pointing at target.
func NewLink(target uint64, toggle bool) Link {
	l := Link{New(TypeLink)}
	l.raw.Parameter = target & linkTargetMask
	l.raw.Control = setBit(l.raw.Control, linkToggleCycle, toggle)
	return l
}

// Raw returns the underlying record.
func (l Link) Raw() TRB { return l.raw }

// Type is always TypeLink.
func (l Link) Type() Type { return TypeLink }

// Target is the next segment's address; the low 4 bits are reserved.
func (l Link) Target() uint64 { return l.raw.Parameter & linkTargetMask }

// ToggleCycle reports whether a consumer flips its cycle state here.
func (l Link) ToggleCycle() bool { return l.raw.Control&linkToggleCycle != 0 }

// Chain reports the CH bit: the TD continues past the Link.
func (l Link) Chain() bool { return l.raw.ChainBit() }

// InterruptOnComplete reports the IOC bit.
func (l Link) InterruptOnComplete() bool { return l.raw.Control&linkIOC != 0 }

// WithChain sets or clears the CH bit.
func (l Link) WithChain(on bool) Link {
	l.raw.Control = setBit(l.raw.Control, controlChain, on)
	return l
}

// WithCycle sets the cycle bit.
func (l Link) WithCycle(c bool) Link {
	l.raw = l.raw.WithCycle(c)
	return l
}

// EventData asks the controller to post its parameter in a Transfer Event.
type EventData struct{ raw TRB }

// NewEventData returns an Event Data TRB carrying data.
func NewEventData(data uint64) EventData {
	e := EventData{New(TypeEventData)}
	e.raw.Parameter = data
	return e
}

// Raw returns the underlying record.
func (e EventData) Raw() TRB { return e.raw }

// Type is always TypeEventData.
func (e EventData) Type() Type { return TypeEventData }

// Data is the value reported in the Transfer Event.
func (e EventData) Data() uint64 { return e.raw.Parameter }

// Chain reports the CH bit.
func (e EventData) Chain() bool { return e.raw.ChainBit() }

// InterruptOnComplete reports the IOC bit.
func (e EventData) InterruptOnComplete() bool { return e.raw.Control&xferIOC != 0 }

// WithChain sets or clears the CH bit.
func (e EventData) WithChain(on bool) EventData {
	e.raw.Control = setBit(e.raw.Control, controlChain, on)
	return e
}

// WithInterruptOnComplete sets or clears the IOC bit.
func (e EventData) WithInterruptOnComplete(on bool) EventData {
	e.raw.Control = setBit(e.raw.Control, xferIOC, on)
	return e
}

// WithCycle sets the cycle bit.
func (e EventData) WithCycle(c bool) EventData {
	e.raw = e.raw.WithCycle(c)
	return e
}

// NoOp is the transfer ring No Op TRB.
type NoOp struct{ raw TRB }

// Raw returns the underlying record.
func (n NoOp) Raw() TRB { return n.raw }

// Type is always TypeNoOp.
func (n NoOp) Type() Type { return TypeNoOp }

// Chain reports the CH bit.
func (n NoOp) Chain() bool { return n.raw.ChainBit() }

// Command control layout.
const (
	cmdEndpointShift = 16
	cmdEndpointWidth = 5
	cmdSlotShift     = 24
	cmdSlotWidth     = 8
	cmdFlag9         = 1 << 9 // BSR, DC, TSP depending on type
)

// Command is the view shared by command ring TRBs.
type Command struct{ raw TRB }

// NewCommand returns an empty command TRB. It panics if typ is not a
// command type.
func NewCommand(typ Type) Command {
	if !typ.IsCommand() {
		panic("trb: NewCommand with non-command type " + typ.String())
	}
	return Command{New(typ)}
}

// Raw returns the underlying record.
func (c Command) Raw() TRB { return c.raw }

// Type is the command type tag.
func (c Command) Type() Type { return c.raw.Type() }

// Pointer is the parameter, usually an input context address.
func (c Command) Pointer() uint64 { return c.raw.Parameter &^ 0xf }

// SlotID is control bits 24-31.
func (c Command) SlotID() uint8 { return uint8(field(c.raw.Control, cmdSlotShift, cmdSlotWidth)) }

// EndpointID is the DCI in control bits 16-20.
func (c Command) EndpointID() uint8 {
	return uint8(field(c.raw.Control, cmdEndpointShift, cmdEndpointWidth))
}

// Flag returns control bit 9: Block Set Address Request for Address Device,
// Deconfigure for Configure Endpoint, Transfer State Preserve for Reset
// Endpoint.
func (c Command) Flag() bool { return c.raw.Control&cmdFlag9 != 0 }

// WithPointer sets the parameter.
func (c Command) WithPointer(p uint64) Command {
	c.raw.Parameter = p
	return c
}

// WithSlotID sets the slot id.
func (c Command) WithSlotID(id uint8) Command {
	c.raw.Control = setField(c.raw.Control, cmdSlotShift, cmdSlotWidth, uint32(id))
	return c
}

// WithEndpointID sets the endpoint DCI.
func (c Command) WithEndpointID(id uint8) Command {
	c.raw.Control = setField(c.raw.Control, cmdEndpointShift, cmdEndpointWidth, uint32(id))
	return c
}

// WithFlag sets or clears control bit 9.
func (c Command) WithFlag(on bool) Command {
	c.raw.Control = setBit(c.raw.Control, cmdFlag9, on)
	return c
}

// WithCycle sets the cycle bit.
func (c Command) WithCycle(cy bool) Command {
	c.raw = c.raw.WithCycle(cy)
	return c
}

// Event status and control layout.
const (
	evtLengthShift    = 0
	evtLengthWidth    = 24
	evtCodeShift      = 24
	evtCodeWidth      = 8
	evtEventData      = 1 << 2
	evtEndpointShift  = 16
	evtEndpointWidth  = 5
	evtVFShift        = 16
	evtVFWidth        = 8
	evtSlotShift      = 24
	evtSlotWidth      = 8
	evtPortShift      = 24
	evtNotifTypeShift = 4
	evtNotifTypeWidth = 4
	evtNotifDataShift = 8
)

// Event is the view shared by event ring TRBs.
type Event struct{ raw TRB }

// NewEvent returns an empty event TRB. It panics if typ is not an event type.
func NewEvent(typ Type) Event {
	if !typ.IsEvent() {
		panic("trb: NewEvent with non-event type " + typ.String())
	}
	return Event{New(typ)}
}

// Raw returns the underlying record.
func (e Event) Raw() TRB { return e.raw }

// Type is the event type tag.
func (e Event) Type() Type { return e.raw.Type() }

// Pointer is the parameter: TRB pointer, command pointer or event data.
func (e Event) Pointer() uint64 { return e.raw.Parameter }

// Length is status bits 0-23: the residual transfer length of a Transfer
// Event, or the completion parameter of a Command Completion Event.
func (e Event) Length() uint32 { return field(e.raw.Status, evtLengthShift, evtLengthWidth) }

// CompletionCode is status bits 24-31.
func (e Event) CompletionCode() CompletionCode {
	return CompletionCode(field(e.raw.Status, evtCodeShift, evtCodeWidth))
}

// EventDataFlag reports the ED bit: Pointer holds Event Data.
func (e Event) EventDataFlag() bool { return e.raw.Control&evtEventData != 0 }

// SlotID is control bits 24-31.
func (e Event) SlotID() uint8 { return uint8(field(e.raw.Control, evtSlotShift, evtSlotWidth)) }

// EndpointID is the DCI of a Transfer Event.
func (e Event) EndpointID() uint8 {
	return uint8(field(e.raw.Control, evtEndpointShift, evtEndpointWidth))
}
// VFID is the virtual function id of a Command Completion Event.
func (e Event) VFID() uint8 { return uint8(field(e.raw.Control, evtVFShift, evtVFWidth)) }

// PortID is the root port of a Port Status Change Event.
func (e Event) PortID() uint8 { return uint8(e.raw.Parameter >> evtPortShift) }

// NotificationType is the Device Notification type (parameter bits 4-7).
func (e Event) NotificationType() uint8 {
	return uint8(e.raw.Parameter>>evtNotifTypeShift) & (1<<evtNotifTypeWidth - 1)
}

// NotificationData is the Device Notification data (parameter bits 8-63).
func (e Event) NotificationData() uint64 { return e.raw.Parameter >> evtNotifDataShift }

// WithPointer sets the parameter.
func (e Event) WithPointer(p uint64) Event {
	e.raw.Parameter = p
	return e
}

// WithLength sets status bits 0-23.
func (e Event) WithLength(n uint32) Event {
	e.raw.Status = setField(e.raw.Status, evtLengthShift, evtLengthWidth, n)
	return e
}

// WithCompletionCode sets the completion code.
func (e Event) WithCompletionCode(c CompletionCode) Event {
	e.raw.Status = setField(e.raw.Status, evtCodeShift, evtCodeWidth, uint32(c))
	return e
}

// WithEventDataFlag sets or clears the ED bit.
func (e Event) WithEventDataFlag(on bool) Event {
	e.raw.Control = setBit(e.raw.Control, evtEventData, on)
	return e
}

// WithSlotID sets the slot id.
func (e Event) WithSlotID(id uint8) Event {
	e.raw.Control = setField(e.raw.Control, evtSlotShift, evtSlotWidth, uint32(id))
	return e
}

// WithEndpointID sets the endpoint DCI.
func (e Event) WithEndpointID(id uint8) Event {
	e.raw.Control = setField(e.raw.Control, evtEndpointShift, evtEndpointWidth, uint32(id))
	return e
}

// WithVFID sets the virtual function id.
func (e Event) WithVFID(id uint8) Event {
	e.raw.Control = setField(e.raw.Control, evtVFShift, evtVFWidth, uint32(id))
	return e
}

// WithPortID sets the root port number.
func (e Event) WithPortID(port uint8) Event {
	e.raw.Parameter = uint64(port) << evtPortShift
	return e
}

// WithNotification stores a Device Notification type and data.
func (e Event) WithNotification(typ uint8, data uint64) Event {
	e.raw.Parameter = data<<evtNotifDataShift |
		uint64(typ&(1<<evtNotifTypeWidth-1))<<evtNotifTypeShift
	return e
}

// WithCycle sets the cycle bit.
func (e Event) WithCycle(c bool) Event {
	e.raw = e.raw.WithCycle(c)
	return e
}
