// Package ring implements the consumer side of xHCI command and transfer
// rings.
//
// A ring lives in guest memory as one or more segments joined by Link TRBs.
// UpdateFromGuest copies the whole circuit into a shadow slice in traversal
// order, so walking the shadow index by index follows the Links. Ownership
// of each slot is decided by its cycle bit alone: a slot is available when
// its cycle bit equals the consumer cycle state, and the state only flips
// at a Link TRB with Toggle Cycle set.
package ring

import (
	"fmt"
	"log/slog"

	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/log"
	"github.com/Alia5/vxhci/trb"
	"github.com/rcrowley/go-metrics"
)

// MaxRecords bounds one UpdateFromGuest walk: 1 GiB of TRBs.
const MaxRecords = (1 << 30) / trb.Size

// Assembler turns the chained TRBs of one work item into a descriptor.
type Assembler[D any] func([]Entry) (D, error)

// Ring is a consumer ring whose work items are assembled into D.
// It is not safe for concurrent use.
type Ring[D any] struct {
	mem      guestmem.Memory
	assemble Assembler[D]
	name     string
	logger   *slog.Logger
	limit    int

	base   uint64
	shadow []Entry
	index  map[uint64]int

	dequeue int
	cycle   bool

	trbs       metrics.Counter
	workItems  metrics.Counter
	incomplete metrics.Counter
	malformed  metrics.Counter
	refreshes  metrics.Counter
}

// CommandRing yields one-TRB command descriptors.
type CommandRing = Ring[CommandDescriptor]

// TransferRing yields chained transfer descriptors.
type TransferRing = Ring[TransferDescriptor]

// New returns an empty ring starting at base with consumer cycle state cycle.
// Call UpdateFromGuest before dequeuing.
func New[D any](mem guestmem.Memory, base uint64, cycle bool, assemble Assembler[D], opts ...Option) *Ring[D] {
	o := options{
		name:     "ring",
		logger:   log.Discard(),
		registry: metrics.NewRegistry(),
		limit:    MaxRecords,
	}
	for _, opt := range opts {
		opt(&o)
	}

	prefix := "ring." + o.name + "."
	return &Ring[D]{
		mem:        mem,
		assemble:   assemble,
		name:       o.name,
		logger:     o.logger.With("ring", o.name),
		limit:      o.limit,
		base:       base &^ 0xf,
		cycle:      cycle,
		trbs:       metrics.GetOrRegisterCounter(prefix+"trbs", o.registry),
		workItems:  metrics.GetOrRegisterCounter(prefix+"work_items", o.registry),
		incomplete: metrics.GetOrRegisterCounter(prefix+"incomplete", o.registry),
		malformed:  metrics.GetOrRegisterCounter(prefix+"malformed", o.registry),
		refreshes:  metrics.GetOrRegisterCounter(prefix+"refreshes", o.registry),
	}
}

// NewCommandRing returns a command ring at base.
func NewCommandRing(mem guestmem.Memory, base uint64, cycle bool, opts ...Option) *CommandRing {
	return New[CommandDescriptor](mem, base, cycle, NewCommandDescriptor, append([]Option{WithName("command")}, opts...)...)
}

// NewTransferRing returns a transfer ring at base.
func NewTransferRing(mem guestmem.Memory, base uint64, cycle bool, opts ...Option) *TransferRing {
	return New[TransferDescriptor](mem, base, cycle, NewTransferDescriptor, append([]Option{WithName("transfer")}, opts...)...)
}

// Configure points the ring at a new base and cycle state, as a write of
// the ring's control register does. The shadow copy is dropped.
func (r *Ring[D]) Configure(base uint64, cycle bool) {
	r.base = base &^ 0xf
	r.cycle = cycle
	r.shadow = nil
	r.index = nil
	r.dequeue = 0
}

// UpdateFromGuest re-reads the ring from guest memory, starting at the base
// and following Link TRBs until one points back at the base. The dequeue
// position is kept if its slot still exists, otherwise it returns to the
// base. On error the previous shadow copy is left in place.
func (r *Ring[D]) UpdateFromGuest() error {
	var (
		shadow  []Entry
		index   = make(map[uint64]int)
		visited = map[uint64]bool{r.base: true}
		addr    = r.base
	)

	for {
		if len(shadow) >= r.limit {
			if shadow[len(shadow)-1].TRB.Type() != trb.TypeLink {
				return fmt.Errorf("ring %s: %w after %d records", r.name, ErrMissingLink, len(shadow))
			}
			return fmt.Errorf("ring %s: %w (%d records)", r.name, ErrRingTooLarge, len(shadow))
		}

		t, err := guestmem.ReadTRB(r.mem, addr)
		if err != nil {
			return fmt.Errorf("ring %s: reading slot %d: %w", r.name, len(shadow), err)
		}
		if _, dup := index[addr]; !dup {
			index[addr] = len(shadow)
		}
		shadow = append(shadow, Entry{Addr: addr, TRB: t})

		l, err := t.AsLink()
		if err != nil {
			addr += trb.Size
			continue
		}
		target := l.Target()
		if target == r.base {
			break
		}
		if visited[target] {
			return fmt.Errorf("ring %s: %w: link at %#x re-enters segment %#x", r.name, ErrRingTooLarge, addr, target)
		}
		visited[target] = true
		addr = target
	}

	// The loop only exits on a Link back to the base; keep the check so a
	// change to the loop cannot quietly accept an open ring.
	if shadow[len(shadow)-1].TRB.Type() != trb.TypeLink {
		return fmt.Errorf("ring %s: %w", r.name, ErrMissingLink)
	}

	current, hadCurrent := r.currentAddr()
	r.shadow = shadow
	r.index = index
	r.dequeue = 0
	if hadCurrent {
		if i, ok := index[current]; ok {
			r.dequeue = i
		} else {
			r.logger.Warn("dequeue slot vanished on refresh, restarting at base", "addr", current)
		}
	}
	r.refreshes.Inc(1)
	log.Trace(r.logger, "ring refreshed",
		"base", r.base, "records", len(shadow), "dequeue", r.dequeue)
	return nil
}

// Reset moves the dequeue position to the slot at pointer. The low four
// bits of pointer carry flags in the registers and are ignored.
func (r *Ring[D]) Reset(pointer uint64) error {
	addr := pointer &^ 0xf
	i, ok := r.index[addr]
	if !ok {
		return fmt.Errorf("ring %s: %w: %#x", r.name, ErrPointerOutsideRing, addr)
	}
	r.dequeue = i
	return nil
}

// SetCycleState overrides the consumer cycle state.
func (r *Ring[D]) SetCycleState(c bool) { r.cycle = c }

// DequeueTRB returns the next available non-Link TRB. Link TRBs on the way
// are consumed, toggling the cycle state where they ask to. ok is false when
// the slot at the dequeue position is not owned by the consumer, or when a
// whole circuit of Links passes without reaching one.
func (r *Ring[D]) DequeueTRB() (e Entry, ok bool) {
	n := len(r.shadow)
	if n == 0 {
		return Entry{}, false
	}
	start := r.dequeue
	for {
		slot := r.shadow[r.dequeue]
		if slot.TRB.Cycle() != r.cycle {
			return Entry{}, false
		}
		r.dequeue = (r.dequeue + 1) % n

		l, err := slot.TRB.AsLink()
		if err != nil {
			r.trbs.Inc(1)
			return slot, true
		}
		if l.ToggleCycle() {
			r.cycle = !r.cycle
		}
		if r.dequeue == start {
			r.logger.Warn("ring holds only links, giving up", "addr", slot.Addr)
			return Entry{}, false
		}
	}
}

// DequeueWorkItem dequeues TRBs while the chain bit is set and assembles
// them. ok is false with a nil error when the ring is empty.
//
// ErrIncomplete and ErrCyclicIncomplete restore the dequeue position and
// cycle state the call started with. A *MalformedError means the TRBs were
// consumed but did not form a valid descriptor.
func (r *Ring[D]) DequeueWorkItem() (item D, ok bool, err error) {
	startIdx, startCycle := r.dequeue, r.cycle
	rollback := func() {
		r.dequeue, r.cycle = startIdx, startCycle
	}

	first, ok := r.DequeueTRB()
	if !ok {
		return item, false, nil
	}
	entries := []Entry{first}
	for entries[len(entries)-1].TRB.ChainBit() {
		if (r.dequeue == startIdx && r.cycle == startCycle) || len(entries) >= len(r.shadow) {
			rollback()
			r.incomplete.Inc(1)
			return item, false, fmt.Errorf("ring %s: %w at %#x", r.name, ErrCyclicIncomplete, first.Addr)
		}
		next, ok := r.DequeueTRB()
		if !ok {
			rollback()
			r.incomplete.Inc(1)
			r.logger.Debug("work item not fully written yet", "addr", first.Addr, "trbs", len(entries))
			return item, false, fmt.Errorf("ring %s: %w at %#x", r.name, ErrIncomplete, first.Addr)
		}
		entries = append(entries, next)
	}

	item, err = r.assemble(entries)
	if err != nil {
		r.malformed.Inc(1)
		return item, false, &MalformedError{Entries: entries, Err: err}
	}
	r.workItems.Inc(1)
	return item, true, nil
}

func (r *Ring[D]) currentAddr() (uint64, bool) {
	if len(r.shadow) == 0 {
		return 0, false
	}
	return r.shadow[r.dequeue].Addr, true
}

// Name is the label used in logs and metrics.
func (r *Ring[D]) Name() string { return r.name }

// Base is the address the ring walk starts from.
func (r *Ring[D]) Base() uint64 { return r.base }

// Len is the number of slots in the shadow copy, Links included.
func (r *Ring[D]) Len() int { return len(r.shadow) }

// DequeueIndex is the shadow slot the next dequeue reads.
func (r *Ring[D]) DequeueIndex() int { return r.dequeue }

// CycleState is the consumer cycle state.
func (r *Ring[D]) CycleState() bool { return r.cycle }

// DequeuePointer is the guest address of the slot at the dequeue position,
// or the base before the first refresh.
func (r *Ring[D]) DequeuePointer() uint64 {
	if a, ok := r.currentAddr(); ok {
		return a
	}
	return r.base
}

// Shadow returns a copy of the cached ring contents.
func (r *Ring[D]) Shadow() []Entry {
	return append([]Entry(nil), r.shadow...)
}
