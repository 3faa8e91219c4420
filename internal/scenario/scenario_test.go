package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	_ "github.com/Alia5/vxhci/device/mouse"
	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/controller"
	"github.com/Alia5/vxhci/internal/scenario"
	"github.com/Alia5/vxhci/trb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bulkInYAML = `
name: bulk-in
memory:
  size: 0x10000
event_ring:
  table: 0x100
  segments:
    - base: 0x1000
      size: 16
command_ring:
  cycle: true
  segments:
    - base: 0x2000
      size: 16
      trbs:
        - type: EnableSlotCmd
endpoints:
  - slot: 1
    dci: 3
    ring:
      cycle: true
      segments:
        - base: 0x3000
          size: 16
          trbs:
            - type: Normal
              pointer: 0x8000
              length: 8
              ioc: true
devices:
  - port: 1
    vendor: 0x1234
    product: 0x5678
    endpoints:
      - address: 0x81
        attributes: 2
        max_packet_size: 512
        in: ["de ad be ef"]
steps:
  - action: doorbell
  - action: configure_endpoint
    slot: 1
    dci: 3
  - action: doorbell
    slot: 1
    target: 3
  - action: ack
`

const bulkInJSON = `{
  "name": "bulk-in",
  "memory": {"size": "0x10000"},
  "event_ring": {"table": 256, "segments": [{"base": "0x1000", "size": 16}]},
  "command_ring": {"cycle": true, "segments": [
    {"base": "0x2000", "size": 16, "trbs": [{"type": "EnableSlotCmd"}]}
  ]},
  "endpoints": [{"slot": 1, "dci": 3, "ring": {"cycle": true, "segments": [
    {"base": "0x3000", "size": 16, "trbs": [{"type": "Normal", "pointer": "0x8000", "length": 8, "ioc": true}]}
  ]}}],
  "devices": [{"port": 1, "vendor": 4660, "product": 22136, "endpoints": [
    {"address": 129, "attributes": 2, "max_packet_size": 512, "in": ["deadbeef"]}
  ]}],
  "steps": [
    {"action": "doorbell"},
    {"action": "configure_endpoint", "slot": 1, "dci": 3},
    {"action": "doorbell", "slot": 1, "target": 3},
    {"action": "ack"}
  ]
}`

const bulkInTOML = `
name = "bulk-in"

[memory]
size = "0x10000"

[event_ring]
table = "0x100"

[[event_ring.segments]]
base = "0x1000"
size = 16

[command_ring]
cycle = true

[[command_ring.segments]]
base = "0x2000"
size = 16

[[command_ring.segments.trbs]]
type = "EnableSlotCmd"

[[endpoints]]
slot = 1
dci = 3

[endpoints.ring]
cycle = true

[[endpoints.ring.segments]]
base = "0x3000"
size = 16

[[endpoints.ring.segments.trbs]]
type = "Normal"
pointer = "0x8000"
length = 8
ioc = true

[[devices]]
port = 1
vendor = 4660
product = 22136

[[devices.endpoints]]
address = 129
attributes = 2
max_packet_size = 512
in = ["de:ad:be:ef"]

[[steps]]
action = "doorbell"

[[steps]]
action = "configure_endpoint"
slot = 1
dci = 3

[[steps]]
action = "doorbell"
slot = 1
target = 3

[[steps]]
action = "ack"
`

func TestParseFormatsAgree(t *testing.T) {
	want, err := scenario.Parse([]byte(bulkInYAML), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "bulk-in", want.Name)
	assert.Equal(t, scenario.Number(0x10000), want.Memory.Size)
	require.Len(t, want.Devices, 1)
	assert.Equal(t, []scenario.Hex{{0xde, 0xad, 0xbe, 0xef}}, want.Devices[0].Endpoints[0].In)

	for _, tc := range []struct {
		format string
		data   string
	}{
		{"json", bulkInJSON},
		{"toml", bulkInTOML},
	} {
		t.Run(tc.format, func(t *testing.T) {
			got, err := scenario.Parse([]byte(tc.data), tc.format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadNamesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulk.yml")
	doc := "event_ring:\n  table: 0x100\n  segments: [{base: 0x1000, size: 16}]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := scenario.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bulk", got.Name)
	assert.Equal(t, scenario.Number(1<<20), got.Memory.Size)

	_, err = scenario.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "no event ring segments",
			doc:  `{"event_ring": {"table": 256}}`,
		},
		{
			name: "command ring without segments",
			doc:  `{"event_ring": {"segments": [{"base": 4096, "size": 16}]}, "command_ring": {}}`,
		},
		{
			name: "trbs overwrite the link",
			doc: `{"event_ring": {"segments": [{"base": 4096, "size": 16}]},
				"command_ring": {"segments": [{"base": 8192, "size": 2, "trbs": [{"type": "NoOpCmd"}, {"type": "NoOpCmd"}]}]}}`,
		},
		{
			name: "unknown trb type",
			doc: `{"event_ring": {"segments": [{"base": 4096, "size": 16}]},
				"command_ring": {"segments": [{"base": 8192, "size": 16, "trbs": [{"type": "Bogus"}]}]}}`,
		},
		{
			name: "unknown action",
			doc:  `{"event_ring": {"segments": [{"base": 4096, "size": 16}]}, "steps": [{"action": "reboot"}]}`,
		},
		{
			name: "write with data and trbs",
			doc: `{"event_ring": {"segments": [{"base": 4096, "size": 16}]},
				"steps": [{"action": "write", "addr": 4096, "data": "00", "trbs": [{"type": "NoOp"}]}]}`,
		},
		{
			name: "configure endpoint without dci",
			doc:  `{"event_ring": {"segments": [{"base": 4096, "size": 16}]}, "steps": [{"action": "configure_endpoint", "slot": 1}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.Parse([]byte(tt.doc), "json")
			assert.ErrorIs(t, err, scenario.ErrInvalid)
		})
	}
}

func TestLayoutLinksSegments(t *testing.T) {
	doc, err := scenario.Parse([]byte(`
event_ring:
  table: 0x100
  segments: [{base: 0x1000, size: 16}]
command_ring:
  cycle: true
  segments:
    - base: 0x2000
      size: 4
      trbs: [{type: NoOpCmd}]
    - base: 0x3000
      size: 4
buffers:
  - addr: 0x8000
    data: "01 02 03"
`), "yaml")
	require.NoError(t, err)
	mem := doc.NewRAM()
	require.NoError(t, doc.Layout(mem))

	first, err := guestmem.ReadTRB(mem, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, trb.TypeNoOpCmd, first.Type())
	assert.True(t, first.Cycle())

	free, err := guestmem.ReadTRB(mem, 0x2010)
	require.NoError(t, err)
	assert.False(t, free.Cycle())

	for _, tt := range []struct {
		addr, target uint64
		toggle       bool
	}{
		{0x2030, 0x3000, false},
		{0x3030, 0x2000, true},
	} {
		rec, err := guestmem.ReadTRB(mem, tt.addr)
		require.NoError(t, err)
		l, err := rec.AsLink()
		require.NoError(t, err)
		assert.Equal(t, tt.target, l.Target())
		assert.Equal(t, tt.toggle, l.ToggleCycle())
		assert.True(t, rec.Cycle())
	}

	buf := make([]byte, 3)
	require.NoError(t, mem.ReadAt(buf, 0x8000))
	assert.Equal(t, []byte{1, 2, 3}, buf)

	entry := make([]byte, 16)
	require.NoError(t, mem.ReadAt(entry, 0x100))
	assert.Equal(t, byte(0x10), entry[1])
	assert.Equal(t, byte(16), entry[8])
}

func TestRunBulkIn(t *testing.T) {
	doc, err := scenario.Parse([]byte(bulkInYAML), "yaml")
	require.NoError(t, err)
	mem := doc.NewRAM()
	require.NoError(t, doc.Layout(mem))
	c := controller.New(mem)

	devices, err := doc.Run(mem, c)
	require.NoError(t, err)
	require.Contains(t, devices, uint8(1))
	assert.Equal(t, uint16(0x1234), devices[1].GetDescriptor().Device.IDVendor)

	got := make([]byte, 4)
	require.NoError(t, mem.ReadAt(got, 0x8000))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, got)

	evs, err := scenario.Events(mem, c.EventRing())
	require.NoError(t, err)
	require.Len(t, evs, 3)

	assert.Equal(t, trb.TypePortStatusChangeEvent, evs[0].Event.Type())
	assert.Equal(t, uint8(1), evs[0].Event.PortID())

	assert.Equal(t, trb.TypeCommandCompletionEvent, evs[1].Event.Type())
	assert.Equal(t, uint64(0x2000), evs[1].Event.Pointer())
	assert.Equal(t, trb.CompletionSuccess, evs[1].Event.CompletionCode())
	assert.Equal(t, uint8(1), evs[1].Event.SlotID())

	xfer := evs[2].Event
	assert.Equal(t, uint64(0x1020), evs[2].Addr)
	assert.Equal(t, trb.TypeTransferEvent, xfer.Type())
	assert.Equal(t, uint64(0x3000), xfer.Pointer())
	assert.Equal(t, trb.CompletionShortPacket, xfer.CompletionCode())
	assert.Equal(t, uint32(4), xfer.Length())
	assert.Equal(t, uint8(3), xfer.EndpointID())

	deq, known := c.EventRing().DequeuePointer()
	assert.True(t, known)
	assert.Equal(t, uint64(0x1030), deq)
}

func TestRunWriteAndOut(t *testing.T) {
	doc, err := scenario.Parse([]byte(`
event_ring:
  table: 0x100
  segments: [{base: 0x1000, size: 16}]
command_ring:
  cycle: true
  segments:
    - base: 0x2000
      size: 16
      trbs: [{type: EnableSlotCmd}]
endpoints:
  - slot: 1
    dci: 2
    ring:
      cycle: true
      segments: [{base: 0x3000, size: 16}]
devices:
  - port: 2
    endpoints: [{address: 0x01, attributes: 2}]
steps:
  - action: doorbell
  - action: configure_endpoint
    slot: 1
    dci: 2
  - action: write
    addr: 0x3000
    cycle: true
    trbs:
      - type: Normal
        data: "0a0b0c"
        ioc: true
  - action: doorbell
    slot: 1
    target: 2
`), "yaml")
	require.NoError(t, err)
	mem := doc.NewRAM()
	require.NoError(t, doc.Layout(mem))
	c := controller.New(mem)

	devices, err := doc.Run(mem, c)
	require.NoError(t, err)
	dev, ok := devices[2].(*scenario.ScriptedDevice)
	require.True(t, ok)
	assert.Equal(t, [][]byte{{0x0a, 0x0b, 0x0c}}, dev.Received(1))
	assert.Equal(t, uint8(2), c.SlotPort(1))

	evs, err := scenario.Events(mem, c.EventRing())
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, trb.CompletionSuccess, evs[2].Event.CompletionCode())
	assert.Equal(t, uint32(0), evs[2].Event.Length())
}

func TestRunMouse(t *testing.T) {
	doc, err := scenario.Parse([]byte(`
event_ring:
  table: 0x100
  segments: [{base: 0x1000, size: 16}]
command_ring:
  cycle: true
  segments:
    - base: 0x2000
      size: 16
      trbs: [{type: EnableSlotCmd}]
endpoints:
  - slot: 1
    dci: 3
    ring:
      cycle: true
      segments:
        - base: 0x3000
          size: 16
          trbs:
            - {type: Normal, pointer: 0x8000, length: 9, ioc: true}
            - {type: Normal, pointer: 0x8010, length: 9, ioc: true}
devices:
  - port: 1
    kind: mouse
    vendor: 0x1209
    input: ["01 0500 fbff 0000 0000"]
steps:
  - action: doorbell
  - action: configure_endpoint
    slot: 1
    dci: 3
  - action: doorbell
    slot: 1
    target: 3
`), "yaml")
	require.NoError(t, err)
	mem := doc.NewRAM()
	require.NoError(t, doc.Layout(mem))
	c := controller.New(mem)

	devices, err := doc.Run(mem, c)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1209), devices[1].GetDescriptor().Device.IDVendor)

	reports := make([]byte, 0x19)
	require.NoError(t, mem.ReadAt(reports, 0x8000))
	assert.Equal(t, []byte{1, 5, 0, 0xfb, 0xff, 0, 0, 0, 0}, reports[:9])
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 0}, reports[0x10:], "buttons held, no movement")

	evs, err := scenario.Events(mem, c.EventRing())
	require.NoError(t, err)
	require.Len(t, evs, 4)
	for _, e := range evs[2:] {
		assert.Equal(t, trb.CompletionSuccess, e.Event.CompletionCode())
	}
}

func TestUnknownDeviceKind(t *testing.T) {
	_, err := scenario.NewDevice(scenario.DeviceSpec{Port: 1, Kind: "toaster"})
	assert.ErrorIs(t, err, scenario.ErrInvalid)

	_, err = scenario.NewDevice(scenario.DeviceSpec{Port: 1, Kind: "mouse", Input: []scenario.Hex{{1, 2}}})
	assert.Error(t, err)
}

func TestRunStopsAtRejectedStep(t *testing.T) {
	doc, err := scenario.Parse([]byte(`
event_ring:
  table: 0x100
  segments: [{base: 0x1000, size: 16}]
steps:
  - action: doorbell
    slot: 3
    target: 1
`), "yaml")
	require.NoError(t, err)
	mem := doc.NewRAM()
	require.NoError(t, doc.Layout(mem))

	_, err = doc.Run(mem, controller.New(mem))
	assert.ErrorIs(t, err, controller.ErrSlotNotEnabled)
	assert.ErrorContains(t, err, "step 0 (doorbell 3 target 1)")
}

func TestSetupStageEncoding(t *testing.T) {
	spec := scenario.TRB{
		Type:  "SetupStage",
		IOC:   true,
		Setup: &scenario.Setup{RequestType: 0x80, Request: 6, Value: 0x0100, Length: 18},
	}
	rec, err := spec.Encode(true)
	require.NoError(t, err)
	x, err := rec.AsTransfer()
	require.NoError(t, err)
	assert.True(t, x.ImmediateData())
	assert.Equal(t, uint32(8), x.Length())
	assert.Equal(t, uint32(3), x.TransferType())
	assert.Equal(t, [8]byte{0x80, 6, 0, 1, 0, 0, 18, 0}, x.Immediate())
	assert.True(t, rec.Cycle())

	off := false
	spec = scenario.TRB{Type: "DataStage", In: true, Length: 18, Pointer: 0x8000, Cycle: &off}
	rec, err = spec.Encode(true)
	require.NoError(t, err)
	x, err = rec.AsTransfer()
	require.NoError(t, err)
	assert.True(t, x.DirectionIn())
	assert.Equal(t, uint64(0x8000), x.BufferPointer())
	assert.False(t, rec.Cycle())
}

func TestValues(t *testing.T) {
	tests := []struct {
		in   string
		want scenario.Number
		err  bool
	}{
		{"4096", 4096, false},
		{"0x1000", 0x1000, false},
		{"0x1_0000", 0x10000, false},
		{"0b101", 5, false},
		{"zero", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n scenario.Number
			err := n.UnmarshalText([]byte(tt.in))
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	var h scenario.Hex
	require.NoError(t, h.UnmarshalText([]byte("0x12:34 56")))
	assert.Equal(t, scenario.Hex{0x12, 0x34, 0x56}, h)
	assert.Error(t, h.UnmarshalText([]byte("123")))
}
