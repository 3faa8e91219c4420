package usb

import "encoding/binary"

// Descriptor types.
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes.
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
)

const (
	configValueDefault   = 1
	configAttrBusPowered = 0x80
	configMaxPower100mA  = 50 // 2mA units
)

// Descriptor is everything a device reports during enumeration.
type Descriptor struct {
	Device     DeviceDescriptor
	Interfaces []InterfaceConfig
	// Strings by index. Index 0 is the language ID list; en-US is reported
	// when it is missing.
	Strings map[uint8]string
}

// InterfaceConfig is one interface with its endpoints and optional HID
// class descriptors.
type InterfaceConfig struct {
	Descriptor    InterfaceDescriptor
	Endpoints     []EndpointDescriptor
	HIDDescriptor []byte
	HIDReport     []byte
}

// DeviceDescriptor is the standard device descriptor.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

// AppendBinary appends the 18-byte device descriptor to b.
func (d DeviceDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, DeviceDescLen, DeviceDescType)
	b = binary.LittleEndian.AppendUint16(b, d.BcdUSB)
	b = append(b, d.BDeviceClass, d.BDeviceSubClass, d.BDeviceProtocol, d.BMaxPacketSize0)
	b = binary.LittleEndian.AppendUint16(b, d.IDVendor)
	b = binary.LittleEndian.AppendUint16(b, d.IDProduct)
	b = binary.LittleEndian.AppendUint16(b, d.BcdDevice)
	return append(b, d.IManufacturer, d.IProduct, d.ISerialNumber, d.BNumConfigurations)
}

// InterfaceDescriptor is the standard interface descriptor.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

// EndpointDescriptor is the standard endpoint descriptor.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

// AppendBinary appends the 7-byte endpoint descriptor to b.
func (e EndpointDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, EndpointDescLen, EndpointDescType, e.BEndpointAddress, e.BMAttributes)
	b = binary.LittleEndian.AppendUint16(b, e.WMaxPacketSize)
	return append(b, e.BInterval)
}

// ConfigDescriptor builds the full configuration descriptor: header, then
// each interface followed by its HID descriptor and endpoints.
func (d *Descriptor) ConfigDescriptor() []byte {
	b := []byte{ConfigDescLen, ConfigDescType, 0, 0, uint8(len(d.Interfaces)),
		configValueDefault, 0, configAttrBusPowered, configMaxPower100mA}
	for _, iface := range d.Interfaces {
		i := iface.Descriptor
		b = append(b, InterfaceDescLen, InterfaceDescType, i.BInterfaceNumber, i.BAlternateSetting,
			uint8(len(iface.Endpoints)), i.BInterfaceClass, i.BInterfaceSubClass, i.BInterfaceProtocol, i.IInterface)
		b = append(b, iface.HIDDescriptor...)
		for _, ep := range iface.Endpoints {
			b = ep.AppendBinary(b)
		}
	}
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(b)))
	return b
}

// StringDescriptor encodes string index i as UTF-16LE, or returns nil when
// the device has no such string.
func (d *Descriptor) StringDescriptor(i uint8) []byte {
	s, ok := d.Strings[i]
	if !ok {
		if i != 0 {
			return nil
		}
		return []byte{4, StringDescType, 0x09, 0x04}
	}
	if i == 0 {
		// Index 0 holds raw language IDs, not text.
		return append([]byte{uint8(2 + len(s)), StringDescType}, s...)
	}
	runes := []rune(s)
	b := make([]byte, 2, 2+len(runes)*2)
	b[0] = uint8(cap(b))
	b[1] = StringDescType
	for _, r := range runes {
		b = binary.LittleEndian.AppendUint16(b, uint16(r))
	}
	return b
}
