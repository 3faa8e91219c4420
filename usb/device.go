// Package usb is the device side of the virtual controller: the interface
// a device implements to receive transfers, and the standard EP0 requests
// the controller answers from the device's descriptor.
package usb

// Transfer directions passed to HandleTransfer.
const (
	DirOut uint32 = 0
	DirIn  uint32 = 1
)

// Device is the minimal interface a device must implement.
type Device interface {
	// HandleTransfer processes a non-EP0 transfer (interrupt/bulk).
	// ep is the endpoint number (without direction). For IN transfers,
	// return the payload to send; for OUT, consume out and return nil.
	HandleTransfer(ep uint32, dir uint32, out []byte) []byte
	GetDescriptor() *Descriptor
}

// ControlHandler is implemented by devices that answer class or vendor
// requests on EP0. ok=false stalls the request.
type ControlHandler interface {
	HandleControl(bmRequestType, bRequest uint8, wValue, wIndex, wLength uint16, data []byte) ([]byte, bool)
}
