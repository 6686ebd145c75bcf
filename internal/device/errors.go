package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrBoardNotFound) {
//	    // board was unplugged
//	}
var (
	// ErrBoardNotFound is returned when a board id is not plugged in.
	ErrBoardNotFound = errors.New("device: board not found")

	// ErrOutOfRange is returned when a layer, key or LED index is outside
	// the board's layout.
	ErrOutOfRange = errors.New("device: position out of range")

	// ErrInvalidEvent is returned when recording an unknown history event.
	ErrInvalidEvent = errors.New("device: invalid history event")
)
