package trb

import "fmt"

// Type is the 6-bit TRB type tag.
type Type uint8

// TRB type tags (xHCI 1.2, table 6-91).
const (
	TypeReserved Type = 0

	// Transfer ring
	TypeNormal      Type = 1
	TypeSetupStage  Type = 2
	TypeDataStage   Type = 3
	TypeStatusStage Type = 4
	TypeIsoch       Type = 5
	TypeLink        Type = 6
	TypeEventData   Type = 7
	TypeNoOp        Type = 8

	// Command ring
	TypeEnableSlotCmd               Type = 9
	TypeDisableSlotCmd              Type = 10
	TypeAddressDeviceCmd            Type = 11
	TypeConfigureEndpointCmd        Type = 12
	TypeEvaluateContextCmd          Type = 13
	TypeResetEndpointCmd            Type = 14
	TypeStopEndpointCmd             Type = 15
	TypeSetTRDequeuePointerCmd      Type = 16
	TypeResetDeviceCmd              Type = 17
	TypeForceEventCmd               Type = 18
	TypeNegotiateBandwidthCmd       Type = 19
	TypeSetLatencyToleranceValueCmd Type = 20
	TypeGetPortBandwidthCmd         Type = 21
	TypeForceHeaderCmd              Type = 22
	TypeNoOpCmd                     Type = 23
	TypeGetExtendedPropertyCmd      Type = 24
	TypeSetExtendedPropertyCmd      Type = 25

	// Event ring
	TypeTransferEvent           Type = 32
	TypeCommandCompletionEvent  Type = 33
	TypePortStatusChangeEvent   Type = 34
	TypeBandwidthRequestEvent   Type = 35
	TypeDoorbellEvent           Type = 36
	TypeHostControllerEvent     Type = 37
	TypeDeviceNotificationEvent Type = 38
	TypeMfIndexWrapEvent        Type = 39
)

var typeNames = map[Type]string{
	TypeNormal:                      "Normal",
	TypeSetupStage:                  "SetupStage",
	TypeDataStage:                   "DataStage",
	TypeStatusStage:                 "StatusStage",
	TypeIsoch:                       "Isoch",
	TypeLink:                        "Link",
	TypeEventData:                   "EventData",
	TypeNoOp:                        "NoOp",
	TypeEnableSlotCmd:               "EnableSlotCmd",
	TypeDisableSlotCmd:              "DisableSlotCmd",
	TypeAddressDeviceCmd:            "AddressDeviceCmd",
	TypeConfigureEndpointCmd:        "ConfigureEndpointCmd",
	TypeEvaluateContextCmd:          "EvaluateContextCmd",
	TypeResetEndpointCmd:            "ResetEndpointCmd",
	TypeStopEndpointCmd:             "StopEndpointCmd",
	TypeSetTRDequeuePointerCmd:      "SetTRDequeuePointerCmd",
	TypeResetDeviceCmd:              "ResetDeviceCmd",
	TypeForceEventCmd:               "ForceEventCmd",
	TypeNegotiateBandwidthCmd:       "NegotiateBandwidthCmd",
	TypeSetLatencyToleranceValueCmd: "SetLatencyToleranceValueCmd",
	TypeGetPortBandwidthCmd:         "GetPortBandwidthCmd",
	TypeForceHeaderCmd:              "ForceHeaderCmd",
	TypeNoOpCmd:                     "NoOpCmd",
	TypeGetExtendedPropertyCmd:      "GetExtendedPropertyCmd",
	TypeSetExtendedPropertyCmd:      "SetExtendedPropertyCmd",
	TypeTransferEvent:               "TransferEvent",
	TypeCommandCompletionEvent:      "CommandCompletionEvent",
	TypePortStatusChangeEvent:       "PortStatusChangeEvent",
	TypeBandwidthRequestEvent:       "BandwidthRequestEvent",
	TypeDoorbellEvent:               "DoorbellEvent",
	TypeHostControllerEvent:         "HostControllerEvent",
	TypeDeviceNotificationEvent:     "DeviceNotificationEvent",
	TypeMfIndexWrapEvent:            "MfIndexWrapEvent",
}

var typesByName map[string]Type

func init() {
	typesByName = make(map[string]Type, len(typeNames))
	for t, n := range typeNames {
		typesByName[n] = t
	}
}

// String returns the type name, or its number when unknown.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType looks a type up by its String name.
func ParseType(name string) (Type, error) {
	if t, ok := typesByName[name]; ok {
		return t, nil
	}
	return TypeReserved, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Known reports whether t is a tag defined by the xHCI specification.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// IsTransfer reports whether t is a data-carrying transfer ring type.
// Link, Event Data and No Op are transfer ring types too but carry no
// transfer length.
func (t Type) IsTransfer() bool {
	return t >= TypeNormal && t <= TypeIsoch
}

// IsCommand reports whether t is a command ring type.
func (t Type) IsCommand() bool {
	return t >= TypeEnableSlotCmd && t <= TypeSetExtendedPropertyCmd
}

// IsEvent reports whether t is an event ring type.
func (t Type) IsEvent() bool {
	return t >= TypeTransferEvent && t <= TypeMfIndexWrapEvent
}
