// Package mouse provides a HID mouse device implementation.
package mouse

import (
	"sync"

	"github.com/Alia5/vxhci/device"
	"github.com/Alia5/vxhci/usb"
)

func init() {
	device.Register("mouse", func(o *device.CreateOptions) usb.Device { return New(o) })
}

// HID class requests answered on EP0.
const (
	hidGetReport   = 0x01
	hidGetIdle     = 0x02
	hidGetProtocol = 0x03
	hidSetIdle     = 0x0a
	hidSetProtocol = 0x0b

	reqTypeClassFromIface = 0xa1
	reqTypeClassToIface   = 0x21
)

// Mouse is a 5-button HID mouse with vertical and horizontal wheels. Fed
// states are reported one per interrupt IN poll; once the queue is empty
// the last buttons are repeated with zero movement.
type Mouse struct {
	descriptor usb.Descriptor

	mu       sync.Mutex
	pending  []InputState
	buttons  uint8
	idle     uint8
	protocol uint8
	polls    uint64
}

// New returns a new Mouse device.
func New(o *device.CreateOptions) *Mouse {
	d := &Mouse{
		descriptor: defaultDescriptor,
		protocol:   1, // report protocol
	}
	if o != nil {
		if o.IdVendor != nil {
			d.descriptor.Device.IDVendor = *o.IdVendor
		}
		if o.IdProduct != nil {
			d.descriptor.Device.IDProduct = *o.IdProduct
		}
	}
	return d
}

// UpdateInputState queues state for the next poll (thread-safe).
func (m *Mouse) UpdateInputState(state InputState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, state)
}

// FeedInput queues a state in its 9-byte wire form.
func (m *Mouse) FeedInput(b []byte) error {
	var st InputState
	if err := st.UnmarshalBinary(b); err != nil {
		return err
	}
	m.UpdateInputState(st)
	return nil
}

// Polls returns how many input reports have been sent.
func (m *Mouse) Polls() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// next pops the state for one report. Callers hold mu.
func (m *Mouse) next() InputState {
	m.polls++
	if len(m.pending) == 0 {
		return InputState{Buttons: m.buttons}
	}
	st := m.pending[0]
	m.pending = m.pending[1:]
	m.buttons = st.Buttons
	return st
}

// HandleTransfer implements interrupt IN for Mouse.
func (m *Mouse) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	if dir != usb.DirIn || ep != 1 { // 0x81 - main input reports
		return nil
	}
	m.mu.Lock()
	st := m.next()
	m.mu.Unlock()
	return st.BuildReport()
}

// HandleControl answers the HID class requests a host sends while binding
// the boot mouse driver.
func (m *Mouse) HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, data []byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case bmRequestType == reqTypeClassFromIface && bRequest == hidGetReport:
		st := m.next()
		return st.BuildReport(), true
	case bmRequestType == reqTypeClassFromIface && bRequest == hidGetIdle:
		return []byte{m.idle}, true
	case bmRequestType == reqTypeClassFromIface && bRequest == hidGetProtocol:
		return []byte{m.protocol}, true
	case bmRequestType == reqTypeClassToIface && bRequest == hidSetIdle:
		m.idle = uint8(wValue >> 8)
		return nil, true
	case bmRequestType == reqTypeClassToIface && bRequest == hidSetProtocol:
		m.protocol = uint8(wValue)
		return nil, true
	}
	return nil, false
}

// GetDescriptor returns the HID boot mouse descriptor.
func (m *Mouse) GetDescriptor() *usb.Descriptor {
	return &m.descriptor
}

// HID Report Descriptor for a 5-button mouse with 16-bit axes and wheels.
var hidReportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x02, // Usage (Mouse)
	0xA1, 0x01, // Collection (Application)
	0x09, 0x01, //   Usage (Pointer)
	0xA1, 0x00, //   Collection (Physical)
	0x05, 0x09, //     Usage Page (Button)
	0x19, 0x01, //     Usage Minimum (Button 1)
	0x29, 0x05, //     Usage Maximum (Button 5)
	0x15, 0x00, //     Logical Minimum (0)
	0x25, 0x01, //     Logical Maximum (1)
	0x95, 0x05, //     Report Count (5)
	0x75, 0x01, //     Report Size (1)
	0x81, 0x02, //     Input (Data, Variable, Absolute)
	0x95, 0x01, //     Report Count (1)
	0x75, 0x03, //     Report Size (3)
	0x81, 0x01, //     Input - padding
	0x05, 0x01, //     Usage Page (Generic Desktop)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x09, 0x38, //     Usage (Wheel)
	0x16, 0x00, 0x80, // Logical Minimum (-32768)
	0x26, 0xFF, 0x7F, // Logical Maximum (32767)
	0x75, 0x10, //     Report Size (16)
	0x95, 0x03, //     Report Count (3)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0x05, 0x0C, //     Usage Page (Consumer)
	0x0A, 0x38, 0x02, // Usage (AC Pan)
	0x16, 0x00, 0x80, // Logical Minimum (-32768)
	0x26, 0xFF, 0x7F, // Logical Maximum (32767)
	0x75, 0x10, //     Report Size (16)
	0x95, 0x01, //     Report Count (1)
	0x81, 0x06, //     Input (Data, Variable, Relative)
	0xC0, //   End Collection
	0xC0, // End Collection
}

var defaultDescriptor = usb.Descriptor{
	Device: usb.DeviceDescriptor{
		BcdUSB:             0x0200,
		BMaxPacketSize0:    0x40, // 64 bytes
		IDVendor:           0x2E8A,
		IDProduct:          0x0011,
		BcdDevice:          0x0100,
		IManufacturer:      0x01,
		IProduct:           0x02,
		ISerialNumber:      0x03,
		BNumConfigurations: 0x01,
	},
	Interfaces: []usb.InterfaceConfig{
		{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceClass:    0x03, // HID
				BInterfaceSubClass: 0x01, // Boot Interface
				BInterfaceProtocol: 0x02, // Mouse
			},
			HIDDescriptor: []byte{
				0x09,       // bLength
				0x21,       // bDescriptorType (HID)
				0x11, 0x01, // bcdHID 1.11
				0x00,                                 // bCountryCode
				0x01,                                 // bNumDescriptors
				0x22,                                 // bDescriptorType (Report)
				byte(len(hidReportDescriptor)), 0x00, // wDescriptorLength
			},
			HIDReport: hidReportDescriptor,
			Endpoints: []usb.EndpointDescriptor{
				{
					BEndpointAddress: 0x81,
					BMAttributes:     0x03, // Interrupt
					WMaxPacketSize:   0x0009,
					BInterval:        0x0A, // 10 ms
				},
			},
		},
	},
	Strings: map[uint8]string{
		1: "vxhci",
		2: "HID Mouse",
		3: "0001",
	},
}
