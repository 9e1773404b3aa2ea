package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDuplicateID) {
//	    // handle duplicate
//	}
var (
	// ErrConfigValidation is matched by every registry validation failure.
	ErrConfigValidation = errors.New("device: configuration invalid")

	// ErrEmptyRegistry is returned when a registry would hold no devices.
	ErrEmptyRegistry = errors.New("device: registry is empty")

	// ErrDuplicateID is returned when two devices share an ID.
	ErrDuplicateID = errors.New("device: duplicate id")

	// ErrEmptyTopic is returned when a device has a blank bus topic.
	ErrEmptyTopic = errors.New("device: empty bus topic")

	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")
)

// ValidationError describes why a candidate device list was rejected.
//
// It matches both ErrConfigValidation and the specific Reason under errors.Is.
type ValidationError struct {
	Reason   error
	DeviceID string
}

func (e *ValidationError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("%v: %v", ErrConfigValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %v: %q", ErrConfigValidation, e.Reason, e.DeviceID)
}

// Unwrap exposes both the umbrella and the specific reason.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrConfigValidation, e.Reason}
}

func invalid(reason error, id string) error {
	return &ValidationError{Reason: reason, DeviceID: id}
}
