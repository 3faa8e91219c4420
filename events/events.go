// Package events builds the event TRBs a controller posts to the Event Ring.
//
// Every builder returns a record with the cycle bit clear; the ring stamps
// the producer cycle state when it writes the record.
package events

import "github.com/Alia5/vxhci/trb"

// Transfer reports completion of the transfer TRB at pointer. length is the
// residual: bytes of the TD that were not transferred.
func Transfer(pointer uint64, length uint32, code trb.CompletionCode, slot, endpoint uint8) trb.TRB {
	return trb.NewEvent(trb.TypeTransferEvent).
		WithPointer(pointer).
		WithLength(length).
		WithCompletionCode(code).
		WithSlotID(slot).
		WithEndpointID(endpoint).
		Raw()
}

// TransferEventData reports completion through an Event Data TRB. The
// parameter carries the Event Data value instead of a TRB pointer and
// length is the number of bytes transferred since the previous Event Data.
func TransferEventData(data uint64, length uint32, code trb.CompletionCode, slot, endpoint uint8) trb.TRB {
	return trb.NewEvent(trb.TypeTransferEvent).
		WithPointer(data).
		WithLength(length).
		WithCompletionCode(code).
		WithEventDataFlag(true).
		WithSlotID(slot).
		WithEndpointID(endpoint).
		Raw()
}

// CommandCompletion reports the command TRB at command as done.
func CommandCompletion(command uint64, code trb.CompletionCode, slot uint8) trb.TRB {
	return trb.NewEvent(trb.TypeCommandCompletionEvent).
		WithPointer(command &^ 0xf).
		WithCompletionCode(code).
		WithSlotID(slot).
		Raw()
}

// PortStatusChange reports a change on root port port.
func PortStatusChange(port uint8) trb.TRB {
	return trb.NewEvent(trb.TypePortStatusChangeEvent).
		WithPortID(port).
		WithCompletionCode(trb.CompletionSuccess).
		Raw()
}

// HostController reports a controller-wide condition such as an Event Ring
// that ran full.
func HostController(code trb.CompletionCode) trb.TRB {
	return trb.NewEvent(trb.TypeHostControllerEvent).
		WithCompletionCode(code).
		Raw()
}

// EventRingFull is the record placed in the last free Event Ring slot.
func EventRingFull() trb.TRB {
	return HostController(trb.CompletionEventRingFullError)
}

// DeviceNotification forwards a Device Notification TP from slot. Only the
// low four bits of typ and the low 56 bits of data fit.
func DeviceNotification(slot uint8, typ uint8, data uint64) trb.TRB {
	return trb.NewEvent(trb.TypeDeviceNotificationEvent).
		WithNotification(typ, data).
		WithCompletionCode(trb.CompletionSuccess).
		WithSlotID(slot).
		Raw()
}

// MfIndexWrap reports that the microframe index wrapped.
func MfIndexWrap() trb.TRB {
	return trb.NewEvent(trb.TypeMfIndexWrapEvent).
		WithCompletionCode(trb.CompletionSuccess).
		Raw()
}
