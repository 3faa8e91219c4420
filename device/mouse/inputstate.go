package mouse

import (
	"encoding/binary"
	"io"
)

// ReportLen is the size of one input report and of the wire form.
const ReportLen = 9

// InputState represents the mouse state used to build a report.
type InputState struct {
	// Button bitfield: bit 0=Left, 1=Right, 2=Middle, 3=Back, 4=Forward
	Buttons uint8
	// Delta X/Y: signed 16-bit relative movement
	DX, DY int16
	// Wheel: signed 16-bit vertical scroll
	Wheel int16
	// Pan: signed 16-bit horizontal scroll
	Pan int16
}

// BuildReport encodes an InputState into the 9-byte HID mouse report.
//
//	Byte 0: Button bitfield (bits 5-7 padding)
//	Bytes 1-2: DX, 3-4: DY, 5-6: Wheel, 7-8: Pan (int16 little-endian)
func (m *InputState) BuildReport() []byte {
	b, _ := m.MarshalBinary()
	b[0] &= 0x1F // 5 buttons, mask upper bits
	return b
}

// MarshalBinary encodes the 9-byte wire state.
func (m *InputState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 1, ReportLen)
	b[0] = m.Buttons
	for _, v := range []int16{m.DX, m.DY, m.Wheel, m.Pan} {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b, nil
}

// UnmarshalBinary decodes a 9-byte wire state.
func (m *InputState) UnmarshalBinary(data []byte) error {
	if len(data) < ReportLen {
		return io.ErrUnexpectedEOF
	}
	m.Buttons = data[0]
	m.DX = int16(binary.LittleEndian.Uint16(data[1:]))
	m.DY = int16(binary.LittleEndian.Uint16(data[3:]))
	m.Wheel = int16(binary.LittleEndian.Uint16(data[5:]))
	m.Pan = int16(binary.LittleEndian.Uint16(data[7:]))
	return nil
}
