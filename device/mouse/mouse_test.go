package mouse_test

import (
	"testing"

	"github.com/Alia5/vxhci/device"
	"github.com/Alia5/vxhci/device/mouse"
	"github.com/Alia5/vxhci/usb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputStateWire(t *testing.T) {
	st := mouse.InputState{Buttons: 0xff, DX: -2, DY: 300, Wheel: 1, Pan: -1}
	b, err := st.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe, 0xff, 0x2c, 0x01, 0x01, 0x00, 0xff, 0xff}, b)

	report := st.BuildReport()
	assert.Equal(t, byte(0x1f), report[0])
	assert.Equal(t, b[1:], report[1:])

	var back mouse.InputState
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, st, back)
	assert.Error(t, back.UnmarshalBinary(b[:4]))
}

func TestPollsConsumeQueuedStates(t *testing.T) {
	m := mouse.New(nil)
	m.UpdateInputState(mouse.InputState{Buttons: 1, DX: 5})
	require.NoError(t, m.FeedInput([]byte{0, 0, 0, 0xfb, 0xff, 0, 0, 0, 0}))

	first := m.HandleTransfer(1, usb.DirIn, nil)
	assert.Equal(t, []byte{1, 5, 0, 0, 0, 0, 0, 0, 0}, first)
	second := m.HandleTransfer(1, usb.DirIn, nil)
	assert.Equal(t, []byte{0, 0, 0, 0xfb, 0xff, 0, 0, 0, 0}, second)

	m.UpdateInputState(mouse.InputState{Buttons: 2, DY: 1})
	m.HandleTransfer(1, usb.DirIn, nil)
	idle := m.HandleTransfer(1, usb.DirIn, nil)
	assert.Equal(t, []byte{2, 0, 0, 0, 0, 0, 0, 0, 0}, idle, "buttons persist, deltas do not")
	assert.Equal(t, uint64(4), m.Polls())

	assert.Nil(t, m.HandleTransfer(2, usb.DirIn, nil))
	assert.Nil(t, m.HandleTransfer(1, usb.DirOut, []byte{1}))
	assert.Error(t, m.FeedInput([]byte{1, 2}))
}

func TestHIDClassRequests(t *testing.T) {
	m := mouse.New(nil)
	tests := []struct {
		name  string
		setup usb.SetupPacket
		want  []byte
		ok    bool
	}{
		{"set idle", usb.SetupPacket{RequestType: 0x21, Request: 0x0a, Value: 0x0400}, nil, true},
		{"get idle", usb.SetupPacket{RequestType: 0xa1, Request: 0x02, Length: 1}, []byte{4}, true},
		{"get protocol", usb.SetupPacket{RequestType: 0xa1, Request: 0x03, Length: 1}, []byte{1}, true},
		{"set boot protocol", usb.SetupPacket{RequestType: 0x21, Request: 0x0b}, nil, true},
		{"get report", usb.SetupPacket{RequestType: 0xa1, Request: 0x01, Value: 0x0100, Length: 9}, make([]byte, 9), true},
		{"report descriptor", usb.SetupPacket{RequestType: 0x81, Request: usb.ReqGetDescriptor, Value: 0x2200, Length: 4}, []byte{0x05, 0x01, 0x09, 0x02}, true},
		{"vendor request stalls", usb.SetupPacket{RequestType: 0xc0, Request: 0x01, Length: 1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := usb.Control(m, tt.setup, nil)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistered(t *testing.T) {
	f, ok := device.Lookup("Mouse")
	require.True(t, ok)
	vid := uint16(0x1209)
	dev := f(&device.CreateOptions{IdVendor: &vid})
	assert.Equal(t, vid, dev.GetDescriptor().Device.IDVendor)
	assert.Equal(t, uint16(0x0011), dev.GetDescriptor().Device.IDProduct)
	assert.Contains(t, device.Kinds(), "mouse")
}
