package dispatch

import (
	"errors"
	"fmt"

	"github.com/nerrad567/tabi-core/internal/device"
)

// Target resolution errors. Use errors.Is() to check for them; use
// errors.As() with *TargetError to get the offending ID or room.
var (
	// ErrDeviceNotFound is returned when a single-target ID is not configured.
	ErrDeviceNotFound = device.ErrDeviceNotFound

	// ErrDeviceDisabled is returned when a single-target device is disabled.
	ErrDeviceDisabled = errors.New("dispatch: device disabled")

	// ErrRoomNotFound is returned when a room has no enabled devices,
	// whether or not the room exists in the registry.
	ErrRoomNotFound = errors.New("dispatch: room not found or has no enabled devices")

	// ErrNoEnabledDevices is returned when a broadcast finds nothing to publish to.
	ErrNoEnabledDevices = errors.New("dispatch: no enabled devices")
)

// TargetError carries the target that failed to resolve.
type TargetError struct {
	Err      error
	DeviceID string
	Room     string
}

func (e *TargetError) Error() string {
	switch {
	case e.DeviceID != "":
		return fmt.Sprintf("%v: %q", e.Err, e.DeviceID)
	case e.Room != "":
		return fmt.Sprintf("%v: %q", e.Err, e.Room)
	default:
		return e.Err.Error()
	}
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// BusError reports a failed publish for a single-target dispatch.
type BusError struct {
	DeviceID string
	Topic    string
	Err      error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("dispatch: publishing to %q for device %q: %v", e.Topic, e.DeviceID, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
