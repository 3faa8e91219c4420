package scenario

import (
	"fmt"
	"sync"

	"github.com/Alia5/vxhci/device"
	"github.com/Alia5/vxhci/usb"
)

// DeviceSpec is a device attached to a root port. Without a kind it is a
// scripted device: IN transfers on an endpoint are answered from its queue
// in order, once empty they return no data, and OUT payloads are recorded.
// A kind names a built-in device (see device.Kinds) that is fed the Input
// states before the run.
type DeviceSpec struct {
	Port         uint8            `yaml:"port" json:"port" toml:"port"`
	Kind         string           `yaml:"kind" json:"kind" toml:"kind"`
	Input        []Hex            `yaml:"input" json:"input" toml:"input"`
	Vendor       uint16           `yaml:"vendor" json:"vendor" toml:"vendor"`
	Product      uint16           `yaml:"product" json:"product" toml:"product"`
	Manufacturer string           `yaml:"manufacturer" json:"manufacturer" toml:"manufacturer"`
	ProductName  string           `yaml:"product_name" json:"product_name" toml:"product_name"`
	Endpoints    []DeviceEndpoint `yaml:"endpoints" json:"endpoints" toml:"endpoints"`
}

// DeviceEndpoint is one endpoint of a scripted device.
type DeviceEndpoint struct {
	Address       uint8  `yaml:"address" json:"address" toml:"address"`
	Attributes    uint8  `yaml:"attributes" json:"attributes" toml:"attributes"`
	MaxPacketSize uint16 `yaml:"max_packet_size" json:"max_packet_size" toml:"max_packet_size"`
	Interval      uint8  `yaml:"interval" json:"interval" toml:"interval"`
	In            []Hex  `yaml:"in" json:"in" toml:"in"`
}

// ScriptedDevice implements usb.Device from a DeviceSpec.
type ScriptedDevice struct {
	desc *usb.Descriptor

	mu  sync.Mutex
	in  map[uint32][][]byte
	out map[uint32][][]byte
}

// NewDevice builds the device described by spec.
func NewDevice(spec DeviceSpec) (usb.Device, error) {
	if spec.Kind == "" || spec.Kind == "scripted" {
		return newScripted(spec), nil
	}
	create, ok := device.Lookup(spec.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown device kind %q (have %v)", ErrInvalid, spec.Kind, device.Kinds())
	}
	opts := &device.CreateOptions{}
	if spec.Vendor != 0 {
		opts.IdVendor = &spec.Vendor
	}
	if spec.Product != 0 {
		opts.IdProduct = &spec.Product
	}
	dev := create(opts)
	if len(spec.Input) > 0 {
		feeder, ok := dev.(device.InputFeeder)
		if !ok {
			return nil, fmt.Errorf("%w: %s devices take no input", ErrInvalid, spec.Kind)
		}
		for i, in := range spec.Input {
			if err := feeder.FeedInput(in); err != nil {
				return nil, fmt.Errorf("%s input %d: %w", spec.Kind, i, err)
			}
		}
	}
	return dev, nil
}

func newScripted(spec DeviceSpec) *ScriptedDevice {
	d := &ScriptedDevice{
		in:  make(map[uint32][][]byte),
		out: make(map[uint32][][]byte),
	}
	iface := usb.InterfaceConfig{Descriptor: usb.InterfaceDescriptor{BInterfaceClass: 0xff}}
	for _, ep := range spec.Endpoints {
		iface.Endpoints = append(iface.Endpoints, usb.EndpointDescriptor{
			BEndpointAddress: ep.Address,
			BMAttributes:     ep.Attributes,
			WMaxPacketSize:   ep.MaxPacketSize,
			BInterval:        ep.Interval,
		})
		num := uint32(ep.Address & 0x0f)
		for _, h := range ep.In {
			d.in[num] = append(d.in[num], []byte(h))
		}
	}

	strs := map[uint8]string{}
	var iManufacturer, iProduct uint8
	if spec.Manufacturer != "" {
		iManufacturer = 1
		strs[iManufacturer] = spec.Manufacturer
	}
	if spec.ProductName != "" {
		iProduct = 2
		strs[iProduct] = spec.ProductName
	}
	d.desc = &usb.Descriptor{
		Device: usb.DeviceDescriptor{
			BcdUSB:             0x0200,
			BMaxPacketSize0:    64,
			IDVendor:           spec.Vendor,
			IDProduct:          spec.Product,
			IManufacturer:      iManufacturer,
			IProduct:           iProduct,
			BNumConfigurations: 1,
		},
		Interfaces: []usb.InterfaceConfig{iface},
		Strings:    strs,
	}
	return d
}

// GetDescriptor returns the descriptor built from the spec.
func (d *ScriptedDevice) GetDescriptor() *usb.Descriptor { return d.desc }

// HandleTransfer records OUT payloads and answers IN from the queue.
func (d *ScriptedDevice) HandleTransfer(ep uint32, dir uint32, out []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if dir == usb.DirOut {
		d.out[ep] = append(d.out[ep], append([]byte(nil), out...))
		return nil
	}
	q := d.in[ep]
	if len(q) == 0 {
		return nil
	}
	d.in[ep] = q[1:]
	return q[0]
}

// Received returns the OUT payloads seen on endpoint ep, oldest first.
func (d *ScriptedDevice) Received(ep uint32) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.out[ep]...)
}
