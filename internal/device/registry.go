package device

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is an immutable, validated view of the configured devices.
//
// All query methods return fresh slices; callers may modify them freely.
type Snapshot struct {
	devices []Device
	byID    map[string]int
}

// NewSnapshot validates devices and indexes them by ID.
// The input slice is copied; later changes to it are not observed.
func NewSnapshot(devices []Device) (*Snapshot, error) {
	if err := Validate(devices); err != nil {
		return nil, err
	}

	s := &Snapshot{
		devices: make([]Device, len(devices)),
		byID:    make(map[string]int, len(devices)),
	}
	copy(s.devices, devices)
	for i, d := range s.devices {
		s.byID[d.ID] = i
	}
	return s, nil
}

// Lookup returns the device with the given ID.
// Absence is not an error here; callers decide what it means.
func (s *Snapshot) Lookup(id string) (Device, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Device{}, false
	}
	return s.devices[i], true
}

// DevicesInRoom returns the enabled devices in room, in registry order.
//
// An unknown room and a room whose devices are all disabled both yield an
// empty result.
func (s *Snapshot) DevicesInRoom(room string) []Device {
	var out []Device
	for _, d := range s.devices {
		if d.Enabled && d.Room == room {
			out = append(out, d)
		}
	}
	return out
}

// EnabledDevices returns every enabled device in registry order.
func (s *Snapshot) EnabledDevices() []Device {
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Rooms returns the sorted, deduplicated rooms that have an enabled device.
func (s *Snapshot) Rooms() []string {
	seen := make(map[string]struct{})
	rooms := make([]string, 0)
	for _, d := range s.devices {
		if !d.Enabled {
			continue
		}
		if _, ok := seen[d.Room]; ok {
			continue
		}
		seen[d.Room] = struct{}{}
		rooms = append(rooms, d.Room)
	}
	sort.Strings(rooms)
	return rooms
}

// EnabledByRoom groups enabled devices by room. Within a room, devices keep
// their registry order.
func (s *Snapshot) EnabledByRoom() map[string][]Device {
	grouped := make(map[string][]Device)
	for _, d := range s.devices {
		if d.Enabled {
			grouped[d.Room] = append(grouped[d.Room], d)
		}
	}
	return grouped
}

// All returns every device, enabled or not, in registry order.
func (s *Snapshot) All() []Device {
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Len returns the total number of devices.
func (s *Snapshot) Len() int {
	return len(s.devices)
}

// EnabledCount returns the number of enabled devices.
func (s *Snapshot) EnabledCount() int {
	n := 0
	for _, d := range s.devices {
		if d.Enabled {
			n++
		}
	}
	return n
}

// Registry owns the current Snapshot and serialises changes to it.
//
// Reads go through an atomic pointer and never block. Mutations are
// validate-then-swap under a single writer lock, so two concurrent
// mutators cannot both commit against the same base.
type Registry struct {
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	logger  Logger
}

// NewRegistry builds a Registry from an initial device list.
//
// Returns a *ValidationError (matching ErrConfigValidation) if the list
// breaks any registry invariant.
func NewRegistry(devices []Device) (*Registry, error) {
	snap, err := NewSnapshot(devices)
	if err != nil {
		return nil, err
	}
	r := &Registry{logger: noopLogger{}}
	r.current.Store(snap)
	return r, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Lookup is shorthand for Snapshot().Lookup.
func (r *Registry) Lookup(id string) (Device, bool) {
	return r.Snapshot().Lookup(id)
}

// DevicesInRoom is shorthand for Snapshot().DevicesInRoom.
func (r *Registry) DevicesInRoom(room string) []Device {
	return r.Snapshot().DevicesInRoom(room)
}

// EnabledDevices is shorthand for Snapshot().EnabledDevices.
func (r *Registry) EnabledDevices() []Device {
	return r.Snapshot().EnabledDevices()
}

// Rooms is shorthand for Snapshot().Rooms.
func (r *Registry) Rooms() []string {
	return r.Snapshot().Rooms()
}

// Add appends a new device.
// A device whose ID is already present is rejected with ErrDuplicateID.
func (r *Registry) Add(d Device) error {
	return r.mutate("add", d.ID, func(devices []Device) ([]Device, error) {
		return append(devices, d), nil
	})
}

// Update replaces the device with the same ID, keeping its position.
func (r *Registry) Update(d Device) error {
	return r.mutate("update", d.ID, func(devices []Device) ([]Device, error) {
		i := indexOf(devices, d.ID)
		if i < 0 {
			return nil, invalid(ErrDeviceNotFound, d.ID)
		}
		devices[i] = d
		return devices, nil
	})
}

// Remove deletes the device with the given ID and returns it.
// Removing the last device is rejected because the registry may not be empty.
func (r *Registry) Remove(id string) (Device, error) {
	var removed Device
	err := r.mutate("remove", id, func(devices []Device) ([]Device, error) {
		i := indexOf(devices, id)
		if i < 0 {
			return nil, invalid(ErrDeviceNotFound, id)
		}
		removed = devices[i]
		return append(devices[:i], devices[i+1:]...), nil
	})
	if err != nil {
		return Device{}, err
	}
	return removed, nil
}

// SetEnabled toggles whether a device takes part in dispatch.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.mutate("set_enabled", id, func(devices []Device) ([]Device, error) {
		i := indexOf(devices, id)
		if i < 0 {
			return nil, invalid(ErrDeviceNotFound, id)
		}
		devices[i].Enabled = enabled
		return devices, nil
	})
}

// mutate applies change to a copy of the current device list and commits
// the result only if it validates.
func (r *Registry) mutate(op, id string, change func([]Device) ([]Device, error)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	candidate, err := change(r.current.Load().All())
	if err != nil {
		r.logger.Warn("device registry change rejected", "op", op, "device_id", id, "error", err)
		return err
	}

	snap, err := NewSnapshot(candidate)
	if err != nil {
		r.logger.Warn("device registry change rejected", "op", op, "device_id", id, "error", err)
		return err
	}

	r.current.Store(snap)
	r.logger.Info("device registry updated", "op", op, "device_id", id, "devices", snap.Len())
	return nil
}

func indexOf(devices []Device, id string) int {
	for i, d := range devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}
