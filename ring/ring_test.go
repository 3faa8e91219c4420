package ring_test

import (
	"errors"
	"testing"

	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/ring"
	"github.com/Alia5/vxhci/trb"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	segA  = 0x1000
	segB  = 0x2000
	segC  = 0x3000
	slots = 16
)

func slot(seg uint64, i int) uint64 { return seg + uint64(i)*trb.Size }

func put(t *testing.T, mem guestmem.Memory, addr uint64, rec trb.TRB) {
	t.Helper()
	require.NoError(t, guestmem.WriteTRB(mem, addr, rec))
}

func link(t *testing.T, mem guestmem.Memory, seg uint64, next uint64, toggle, cycle bool) {
	t.Helper()
	put(t, mem, slot(seg, slots-1), trb.NewLink(next, toggle).WithCycle(cycle).Raw())
}

func normal(length uint32, chain, cycle bool) trb.TRB {
	return trb.NewTransfer(trb.TypeNormal).WithLength(length).WithChain(chain).WithCycle(cycle).Raw()
}

func newMem() *guestmem.RAM { return guestmem.NewRAM(0, 0x10000) }

func TestEmptyWhenNoSlotMatchesCycle(t *testing.T) {
	mem := newMem()
	for i := 0; i < slots-1; i++ {
		put(t, mem, slot(segA, i), normal(8, false, false))
	}
	link(t, mem, segA, segA, true, false)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	require.Equal(t, slots, r.Len())

	for i := 0; i < slots; i++ {
		require.NoError(t, r.Reset(slot(segA, i)))
		_, ok := r.DequeueTRB()
		assert.False(t, ok, "slot %d", i)
		assert.Equal(t, i, r.DequeueIndex())
		assert.True(t, r.CycleState())
	}

	td, ok, err := r.DequeueWorkItem()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, td.Len())
}

func TestLinkSegmentTraversal(t *testing.T) {
	setup := trb.NewTransfer(trb.TypeSetupStage).WithChain(true).WithCycle(true).Raw()
	data := trb.NewTransfer(trb.TypeDataStage).WithLength(8).WithCycle(true).Raw()

	t.Run("plain link", func(t *testing.T) {
		mem := newMem()
		link(t, mem, segA, segB, false, true)
		link(t, mem, segB, segA, true, true)
		put(t, mem, slot(segA, 14), setup)
		put(t, mem, slot(segB, 0), data)

		r := ring.NewTransferRing(mem, segA, true)
		require.NoError(t, r.UpdateFromGuest())
		require.Equal(t, 2*slots, r.Len())
		require.NoError(t, r.Reset(slot(segA, 14)))

		td, ok, err := r.DequeueWorkItem()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 2, td.Len())
		assert.Equal(t, ring.Entry{Addr: slot(segA, 14), TRB: setup}, td.First())
		assert.Equal(t, ring.Entry{Addr: slot(segB, 0), TRB: data}, td.Last())
		assert.True(t, r.CycleState(), "non-toggling link must keep the cycle state")

		_, ok = r.DequeueTRB()
		assert.False(t, ok)
	})

	t.Run("toggling link", func(t *testing.T) {
		mem := newMem()
		link(t, mem, segA, segB, false, true)
		link(t, mem, segB, segA, true, true)
		// Slots left over from the previous lap.
		for i := 1; i < slots-1; i++ {
			put(t, mem, slot(segA, i), normal(1, false, true))
		}
		put(t, mem, slot(segB, 14), setup)
		put(t, mem, slot(segA, 0), data.WithCycle(false))

		r := ring.NewTransferRing(mem, segA, true)
		require.NoError(t, r.UpdateFromGuest())
		require.NoError(t, r.Reset(slot(segB, 14)))

		first, ok := r.DequeueTRB()
		require.True(t, ok)
		assert.Equal(t, trb.TypeSetupStage, first.TRB.Type())
		assert.True(t, r.CycleState())

		second, ok := r.DequeueTRB()
		require.True(t, ok)
		assert.Equal(t, trb.TypeDataStage, second.TRB.Type())
		assert.Equal(t, uint64(segA), second.Addr)
		assert.False(t, r.CycleState(), "cycle state flips at the toggling link")

		_, ok = r.DequeueTRB()
		assert.False(t, ok)
		assert.False(t, r.CycleState())
	})
}

func TestTransferSize(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(0, true, true))
	put(t, mem, slot(segA, 1), normal(8, false, true))
	link(t, mem, segA, segA, true, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	td, ok, err := r.DequeueWorkItem()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, td.Len())
	assert.Equal(t, uint32(8), td.TransferSize())
}

func TestTransferDescriptorEventData(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(16, true, true))
	put(t, mem, slot(segA, 1), trb.NewEventData(0xfeed).WithInterruptOnComplete(true).WithCycle(true).Raw())
	link(t, mem, segA, segA, true, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	td, ok, err := r.DequeueWorkItem()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, uint32(16), td.TransferSize())
	assert.True(t, td.InterruptOnComplete())
	e, d, ok := td.EventData()
	require.True(t, ok)
	assert.Equal(t, slot(segA, 1), e.Addr)
	assert.Equal(t, uint64(0xfeed), d.Data())
}

func TestCommandDescriptorArity(t *testing.T) {
	cmd := ring.Entry{Addr: segA, TRB: trb.NewCommand(trb.TypeNoOpCmd).Raw()}

	type testCase struct {
		name    string
		entries []ring.Entry
		wantErr bool
	}
	cases := []testCase{
		{name: "zero", entries: nil, wantErr: true},
		{name: "one", entries: []ring.Entry{cmd}},
		{name: "two", entries: []ring.Entry{cmd, cmd}, wantErr: true},
		{name: "three", entries: []ring.Entry{cmd, cmd, cmd}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ring.NewCommandDescriptor(tc.entries)
			if tc.wantErr {
				assert.ErrorIs(t, err, ring.ErrDescriptorSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, trb.TypeNoOpCmd, d.Type())
			assert.Equal(t, uint64(segA), d.Addr())
		})
	}

	_, err := ring.NewTransferDescriptor(nil)
	assert.ErrorIs(t, err, ring.ErrDescriptorSize)
}

func TestCommandRingRejectsChains(t *testing.T) {
	mem := newMem()
	chained := trb.NewCommand(trb.TypeEnableSlotCmd).WithCycle(true).Raw()
	chained.Control |= 1 << 4
	put(t, mem, slot(segA, 0), chained)
	put(t, mem, slot(segA, 1), trb.NewCommand(trb.TypeNoOpCmd).WithCycle(true).Raw())
	put(t, mem, slot(segA, 2), trb.NewCommand(trb.TypeNoOpCmd).WithCycle(true).Raw())
	link(t, mem, segA, segA, true, true)

	r := ring.NewCommandRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())

	_, ok, err := r.DequeueWorkItem()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ring.ErrDescriptorSize)
	var me *ring.MalformedError
	require.True(t, errors.As(err, &me))
	assert.Len(t, me.Entries, 2)
	assert.Equal(t, uint64(segA), me.Entries[0].Addr)

	// The bad pair is consumed; the next command is still readable.
	cmd, ok, err := r.DequeueWorkItem()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, slot(segA, 2), cmd.Addr())
}

func TestIncompleteWorkItemRollsBack(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(4, true, true))
	put(t, mem, slot(segA, 1), normal(4, true, true))
	link(t, mem, segA, segA, true, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())

	_, ok, err := r.DequeueWorkItem()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ring.ErrIncomplete)
	assert.NotErrorIs(t, err, ring.ErrCyclicIncomplete)
	assert.Equal(t, 0, r.DequeueIndex())
	assert.True(t, r.CycleState())

	// The guest finishes the TD.
	put(t, mem, slot(segA, 2), normal(4, false, true))
	require.NoError(t, r.UpdateFromGuest())
	td, ok, err := r.DequeueWorkItem()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, td.Len())
	assert.Equal(t, uint32(12), td.TransferSize())
	assert.Equal(t, 3, r.DequeueIndex())
}

func TestCyclicIncompleteWorkItem(t *testing.T) {
	mem := newMem()
	for i := 0; i < slots-1; i++ {
		put(t, mem, slot(segA, i), normal(1, true, true))
	}
	// No toggle: after one lap every slot is still owned by the consumer.
	link(t, mem, segA, segA, false, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())

	_, ok, err := r.DequeueWorkItem()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ring.ErrCyclicIncomplete)
	assert.Equal(t, 0, r.DequeueIndex())
}

func TestRingOfOnlyLinksTerminates(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), trb.NewLink(segB, false).WithCycle(true).Raw())
	put(t, mem, slot(segB, 0), trb.NewLink(segA, false).WithCycle(true).Raw())

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	require.Equal(t, 2, r.Len())

	_, ok := r.DequeueTRB()
	assert.False(t, ok)
	_, ok, err := r.DequeueWorkItem()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestUpdateFromGuestShapeErrors(t *testing.T) {
	t.Run("segment without link", func(t *testing.T) {
		mem := newMem()
		r := ring.NewTransferRing(mem, segA, true, ring.WithRecordLimit(64))
		err := r.UpdateFromGuest()
		assert.ErrorIs(t, err, ring.ErrMissingLink)
		assert.Zero(t, r.Len())
	})

	t.Run("links never return to base", func(t *testing.T) {
		mem := newMem()
		link(t, mem, segA, segB, false, true)
		link(t, mem, segB, segC, false, true)
		link(t, mem, segC, segB, false, true)
		r := ring.NewTransferRing(mem, segA, true)
		assert.ErrorIs(t, r.UpdateFromGuest(), ring.ErrRingTooLarge)
	})

	t.Run("record limit reached on a link", func(t *testing.T) {
		mem := newMem()
		link(t, mem, segA, segB, false, true)
		link(t, mem, segB, segA, true, true)
		r := ring.NewTransferRing(mem, segA, true, ring.WithRecordLimit(slots))
		assert.ErrorIs(t, r.UpdateFromGuest(), ring.ErrRingTooLarge)
	})

	t.Run("guest memory failure", func(t *testing.T) {
		mem := guestmem.NewRAM(segA, 4*trb.Size)
		r := ring.NewTransferRing(mem, segA, true)
		assert.ErrorIs(t, r.UpdateFromGuest(), guestmem.ErrBadAddress)

		r = ring.NewTransferRing(mem, 0x100, true)
		assert.ErrorIs(t, r.UpdateFromGuest(), guestmem.ErrBadAddress)
	})

	t.Run("link target outside memory", func(t *testing.T) {
		mem := newMem()
		link(t, mem, segA, 0x100000, false, true)
		r := ring.NewTransferRing(mem, segA, true)
		assert.ErrorIs(t, r.UpdateFromGuest(), guestmem.ErrBadAddress)
	})
}

func TestIdempotentRefresh(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(8, false, true))
	link(t, mem, segA, segB, false, true)
	put(t, mem, slot(segB, 3), normal(3, true, false))
	link(t, mem, segB, segA+0x7, true, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	first := r.Shadow()
	require.NoError(t, r.UpdateFromGuest())
	assert.Equal(t, first, r.Shadow())
	assert.Len(t, first, 2*slots)
}

func TestRefreshKeepsDequeuePosition(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(8, false, true))
	put(t, mem, slot(segA, 1), normal(8, false, true))
	link(t, mem, segA, segA, true, true)

	r := ring.NewTransferRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())
	_, ok := r.DequeueTRB()
	require.True(t, ok)
	require.NoError(t, r.UpdateFromGuest())
	assert.Equal(t, 1, r.DequeueIndex())
	assert.Equal(t, slot(segA, 1), r.DequeuePointer())
}

func TestResetOutsideRing(t *testing.T) {
	mem := newMem()
	link(t, mem, segA, segA, true, true)
	r := ring.NewTransferRing(mem, segA, true)

	assert.ErrorIs(t, r.Reset(segA), ring.ErrPointerOutsideRing, "not loaded yet")
	require.NoError(t, r.UpdateFromGuest())
	assert.NoError(t, r.Reset(slot(segA, 3)|0x1))
	assert.Equal(t, 3, r.DequeueIndex())
	assert.ErrorIs(t, r.Reset(segB), ring.ErrPointerOutsideRing)
	assert.Equal(t, 3, r.DequeueIndex())
}

func TestConfigureDropsShadow(t *testing.T) {
	mem := newMem()
	link(t, mem, segA, segA, true, true)
	link(t, mem, segB, segB, true, false)
	r := ring.NewCommandRing(mem, segA, true)
	require.NoError(t, r.UpdateFromGuest())

	r.Configure(segB|0x1, false)
	assert.Zero(t, r.Len())
	assert.Equal(t, uint64(segB), r.Base())
	assert.False(t, r.CycleState())
	require.NoError(t, r.UpdateFromGuest())
	assert.Equal(t, slots, r.Len())
	assert.Equal(t, uint64(segB), r.DequeuePointer())
}

func TestRingMetrics(t *testing.T) {
	mem := newMem()
	put(t, mem, slot(segA, 0), normal(1, true, true))
	put(t, mem, slot(segA, 1), normal(1, false, true))
	put(t, mem, slot(segA, 2), normal(1, true, true))
	link(t, mem, segA, segA, true, true)

	reg := metrics.NewRegistry()
	r := ring.NewTransferRing(mem, segA, true, ring.WithName("ep1"), ring.WithRegistry(reg))
	require.NoError(t, r.UpdateFromGuest())

	_, ok, err := r.DequeueWorkItem()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = r.DequeueWorkItem()
	require.ErrorIs(t, err, ring.ErrIncomplete)

	count := func(name string) int64 {
		c, ok := reg.Get("ring.ep1." + name).(metrics.Counter)
		require.True(t, ok, name)
		return c.Count()
	}
	assert.Equal(t, int64(1), count("work_items"))
	assert.Equal(t, int64(1), count("incomplete"))
	assert.Equal(t, int64(3), count("trbs"))
	assert.Equal(t, int64(1), count("refreshes"))
}
