package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose serial
	// number is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidKind is returned when a device kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidState is returned when a state value or wire code is not
	// recognised.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidSerial is returned when a serial number is empty.
	ErrInvalidSerial = errors.New("device: invalid serial number")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: invalid name")
)
