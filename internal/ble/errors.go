package ble

import "errors"

var (
	// ErrUnrecognizedDevice means the advertised name matched no profile.
	// No session is created.
	ErrUnrecognizedDevice = errors.New("ble: unrecognized device")
	// ErrUnknownAddress means the address was not seen by the current scan.
	ErrUnknownAddress = errors.New("ble: unknown address")
	// ErrNotReady means the operation needs a ready session.
	ErrNotReady = errors.New("ble: not ready")
	// ErrHardwareFailure means the radio rejected or failed a request.
	ErrHardwareFailure = errors.New("ble: hardware failure")
	// ErrPayloadTooLarge means the payload exceeds a single characteristic write.
	ErrPayloadTooLarge = errors.New("ble: payload too large")
	// ErrClosed means the manager has been closed.
	ErrClosed = errors.New("ble: manager closed")
)
