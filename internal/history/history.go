package history

import (
	"context"
	"time"
)

// LastCommand is the most recent successful command sent to a device.
type LastCommand struct {
	Command string    `json:"command"`
	At      time.Time `json:"at"`
}

// LastCommandSource looks up the latest command for a set of devices.
// Devices with no recorded command are absent from the returned map.
type LastCommandSource interface {
	LastCommands(ctx context.Context, deviceIDs []string) (map[string]LastCommand, error)
}

// Entry is one dispatch_log row.
type Entry struct {
	DispatchID string    `json:"dispatch_id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Command    string    `json:"command"`
	DeviceID   string    `json:"blind_id"`
	DeviceName string    `json:"blind_name"`
	Room       string    `json:"room"`
	Status     string    `json:"status"`
	Topic      string    `json:"topic,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
