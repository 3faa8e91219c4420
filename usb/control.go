package usb

import (
	"encoding/binary"
	"fmt"
)

// Standard request codes.
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
)

// bmRequestType values for standard requests.
const (
	reqTypeStandardToDevice    = 0x00
	reqTypeStandardToInterface = 0x01
	reqTypeStandardToEndpoint  = 0x02
	reqTypeStandardFromDevice  = 0x80
	reqTypeStandardFromIface   = 0x81
	reqTypeStandardFromEP      = 0x82
	reqTypeDirIn               = 0x80
)

// SetupPacket is the 8-byte request that opens a control transfer.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetupPacket decodes the little-endian wire form.
func ParseSetupPacket(b [8]byte) SetupPacket {
	return SetupPacket{
		RequestType: b[0],
		Request:     b[1],
		Value:       binary.LittleEndian.Uint16(b[2:4]),
		Index:       binary.LittleEndian.Uint16(b[4:6]),
		Length:      binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Bytes encodes s as the 8-byte setup packet.
func (s SetupPacket) Bytes() [8]byte {
	var b [8]byte
	b[0], b[1] = s.RequestType, s.Request
	binary.LittleEndian.PutUint16(b[2:4], s.Value)
	binary.LittleEndian.PutUint16(b[4:6], s.Index)
	binary.LittleEndian.PutUint16(b[6:8], s.Length)
	return b
}

// DirectionIn reports a device-to-host data stage.
func (s SetupPacket) DirectionIn() bool { return s.RequestType&reqTypeDirIn != 0 }

func (s SetupPacket) String() string {
	return fmt.Sprintf("bm=%#02x req=%#02x value=%#04x index=%#04x len=%d",
		s.RequestType, s.Request, s.Value, s.Index, s.Length)
}

// Control answers a request on EP0. Standard enumeration requests are served
// from the device descriptor; anything else goes to the device's
// ControlHandler if it has one. ok=false means the request is stalled.
// IN replies are cut to the requested length.
func Control(dev Device, s SetupPacket, out []byte) (in []byte, ok bool) {
	in, ok = standardRequest(dev, s)
	if !ok {
		h, isHandler := dev.(ControlHandler)
		if !isHandler {
			return nil, false
		}
		in, ok = h.HandleControl(s.RequestType, s.Request, s.Value, s.Index, s.Length, out)
	}
	if int(s.Length) < len(in) {
		in = in[:s.Length]
	}
	return in, ok
}

func standardRequest(dev Device, s SetupPacket) ([]byte, bool) {
	switch {
	case s.Request == ReqSetAddress && s.RequestType == reqTypeStandardToDevice,
		s.Request == ReqSetConfiguration && s.RequestType == reqTypeStandardToDevice:
		return nil, true
	case s.Request == ReqGetConfiguration && s.RequestType == reqTypeStandardFromDevice:
		return []byte{configValueDefault}, true
	case s.Request == ReqGetStatus && s.RequestType >= reqTypeStandardFromDevice && s.RequestType <= reqTypeStandardFromEP:
		return []byte{0, 0}, true
	case (s.Request == ReqClearFeature || s.Request == ReqSetFeature) &&
		(s.RequestType == reqTypeStandardToDevice || s.RequestType == reqTypeStandardToInterface ||
			s.RequestType == reqTypeStandardToEndpoint):
		return nil, true
	}

	desc := dev.GetDescriptor()
	if desc == nil || s.Request != ReqGetDescriptor {
		return nil, false
	}
	dtype, dindex := uint8(s.Value>>8), uint8(s.Value)

	var data []byte
	switch s.RequestType {
	case reqTypeStandardFromDevice:
		switch dtype {
		case DeviceDescType:
			data = desc.Device.AppendBinary(nil)
		case ConfigDescType:
			data = desc.ConfigDescriptor()
		case StringDescType:
			data = desc.StringDescriptor(dindex)
		}
	case reqTypeStandardFromIface:
		iface := int(s.Index & 0xff)
		if iface < len(desc.Interfaces) {
			switch dtype {
			case HIDDescType:
				data = desc.Interfaces[iface].HIDDescriptor
			case ReportDescType:
				data = desc.Interfaces[iface].HIDReport
			}
		}
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}
