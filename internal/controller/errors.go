package controller

import "errors"

// Errors returned for register writes the controller cannot act on.
var (
	ErrCommandRingNotConfigured = errors.New("controller: command ring not configured")
	ErrEventRingNotConfigured   = errors.New("controller: event ring not configured")
	ErrSlotNotEnabled           = errors.New("controller: slot not enabled")
	ErrEndpointNotConfigured    = errors.New("controller: endpoint has no transfer ring")
	ErrInvalidEndpoint          = errors.New("controller: endpoint id outside 1-31")
	ErrInvalidPort              = errors.New("controller: no such port")
	ErrPortInUse                = errors.New("controller: port already has a device")
)
