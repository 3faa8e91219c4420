package events_test

import (
	"testing"

	"github.com/Alia5/vxhci/events"
	"github.com/Alia5/vxhci/trb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilders(t *testing.T) {
	type testCase struct {
		name  string
		rec   trb.TRB
		typ   trb.Type
		code  trb.CompletionCode
		check func(t *testing.T, e trb.Event)
	}
	cases := []testCase{
		{
			name: "transfer",
			rec:  events.Transfer(0x1230, 5, trb.CompletionShortPacket, 3, 2),
			typ:  trb.TypeTransferEvent,
			code: trb.CompletionShortPacket,
			check: func(t *testing.T, e trb.Event) {
				assert.Equal(t, uint64(0x1230), e.Pointer())
				assert.Equal(t, uint32(5), e.Length())
				assert.Equal(t, uint8(3), e.SlotID())
				assert.Equal(t, uint8(2), e.EndpointID())
				assert.False(t, e.EventDataFlag())
			},
		},
		{
			name: "transfer event data",
			rec:  events.TransferEventData(0xcafe, 64, trb.CompletionSuccess, 1, 3),
			typ:  trb.TypeTransferEvent,
			code: trb.CompletionSuccess,
			check: func(t *testing.T, e trb.Event) {
				assert.Equal(t, uint64(0xcafe), e.Pointer())
				assert.Equal(t, uint32(64), e.Length())
				assert.True(t, e.EventDataFlag())
			},
		},
		{
			name: "command completion",
			rec:  events.CommandCompletion(0x4005, trb.CompletionSuccess, 7),
			typ:  trb.TypeCommandCompletionEvent,
			code: trb.CompletionSuccess,
			check: func(t *testing.T, e trb.Event) {
				assert.Equal(t, uint64(0x4000), e.Pointer())
				assert.Equal(t, uint8(7), e.SlotID())
			},
		},
		{
			name: "port status change",
			rec:  events.PortStatusChange(4),
			typ:  trb.TypePortStatusChangeEvent,
			code: trb.CompletionSuccess,
			check: func(t *testing.T, e trb.Event) {
				assert.Equal(t, uint8(4), e.PortID())
				assert.Equal(t, uint64(4)<<24, e.Pointer())
			},
		},
		{
			name: "host controller",
			rec:  events.HostController(trb.CompletionEventLostError),
			typ:  trb.TypeHostControllerEvent,
			code: trb.CompletionEventLostError,
		},
		{
			name: "event ring full",
			rec:  events.EventRingFull(),
			typ:  trb.TypeHostControllerEvent,
			code: trb.CompletionEventRingFullError,
			check: func(t *testing.T, e trb.Event) {
				assert.Zero(t, e.Pointer())
			},
		},
		{
			name: "device notification",
			rec:  events.DeviceNotification(2, 0x1, 0xabcdef),
			typ:  trb.TypeDeviceNotificationEvent,
			code: trb.CompletionSuccess,
			check: func(t *testing.T, e trb.Event) {
				assert.Equal(t, uint8(2), e.SlotID())
				assert.Equal(t, uint8(1), e.NotificationType())
				assert.Equal(t, uint64(0xabcdef), e.NotificationData())
			},
		},
		{
			name: "mfindex wrap",
			rec:  events.MfIndexWrap(),
			typ:  trb.TypeMfIndexWrapEvent,
			code: trb.CompletionSuccess,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.typ, tc.rec.Type())
			assert.False(t, tc.rec.Cycle(), "builders leave the cycle bit to the ring")
			e, err := tc.rec.AsEvent()
			require.NoError(t, err)
			assert.Equal(t, tc.code, e.CompletionCode())
			if tc.check != nil {
				tc.check(t, e)
			}
		})
	}
}
