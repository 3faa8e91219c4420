package ring

import (
	"fmt"

	"github.com/Alia5/vxhci/trb"
)

// Entry is a TRB together with the guest address it was read from.
type Entry struct {
	Addr uint64
	TRB  trb.TRB
}

// CommandDescriptor is a command ring work item: exactly one TRB.
type CommandDescriptor struct {
	entry Entry
}

// NewCommandDescriptor wraps entries, which must hold exactly one TRB.
func NewCommandDescriptor(entries []Entry) (CommandDescriptor, error) {
	if len(entries) != 1 {
		return CommandDescriptor{}, fmt.Errorf("%w: command descriptor built from %d TRBs", ErrDescriptorSize, len(entries))
	}
	return CommandDescriptor{entry: entries[0]}, nil
}

// TRB returns the command record.
func (c CommandDescriptor) TRB() trb.TRB { return c.entry.TRB }

// Addr is the guest address of the command.
func (c CommandDescriptor) Addr() uint64 { return c.entry.Addr }

// Type is the command type tag.
func (c CommandDescriptor) Type() trb.Type { return c.entry.TRB.Type() }

// Command returns the typed view, failing for non-command TRBs a guest put
// on the command ring.
func (c CommandDescriptor) Command() (trb.Command, error) {
	return c.entry.TRB.AsCommand()
}

// TransferDescriptor is one logical transfer: TRBs joined by chain bits.
// Link TRBs are never part of it.
type TransferDescriptor struct {
	entries []Entry
}

// NewTransferDescriptor wraps entries, which must not be empty.
func NewTransferDescriptor(entries []Entry) (TransferDescriptor, error) {
	if len(entries) == 0 {
		return TransferDescriptor{}, fmt.Errorf("%w: empty transfer descriptor", ErrDescriptorSize)
	}
	return TransferDescriptor{entries: append([]Entry(nil), entries...)}, nil
}

// Len is the number of TRBs in the TD.
func (t TransferDescriptor) Len() int { return len(t.entries) }

// First returns the first TRB of the TD.
func (t TransferDescriptor) First() Entry { return t.entries[0] }

// Last returns the TRB that ended the chain.
func (t TransferDescriptor) Last() Entry { return t.entries[len(t.entries)-1] }

// Type is the type of the first TRB.
func (t TransferDescriptor) Type() trb.Type { return t.entries[0].TRB.Type() }

// Entries returns a copy of the TRBs in ring order.
func (t TransferDescriptor) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// TransferSize sums the TRB Transfer Length of the data-carrying TRBs.
func (t TransferDescriptor) TransferSize() uint32 {
	var n uint32
	for _, e := range t.entries {
		if x, err := e.TRB.AsTransfer(); err == nil {
			n += x.Length()
		}
	}
	return n
}

// InterruptOnComplete reports whether any TRB asks for a completion event.
func (t TransferDescriptor) InterruptOnComplete() bool {
	for _, e := range t.entries {
		if x, err := e.TRB.AsTransfer(); err == nil && x.InterruptOnComplete() {
			return true
		}
		if d, err := e.TRB.AsEventData(); err == nil && d.InterruptOnComplete() {
			return true
		}
	}
	return false
}

// EventData returns the last Event Data TRB of the descriptor, if any.
func (t TransferDescriptor) EventData() (Entry, trb.EventData, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if d, err := t.entries[i].TRB.AsEventData(); err == nil {
			return t.entries[i], d, true
		}
	}
	return Entry{}, trb.EventData{}, false
}
