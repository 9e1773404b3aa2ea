package status

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/history"
)

// Health values reported by SystemStatus.
const (
	Healthy  = "healthy"
	Degraded = "degraded"
)

// lastCommandTimeout bounds the history lookup behind a status read.
const lastCommandTimeout = 2 * time.Second

// SnapshotSource yields the current registry view.
type SnapshotSource interface {
	Snapshot() *device.Snapshot
}

// Connectivity reports bus liveness.
type Connectivity interface {
	IsConnected() bool
}

// Logger is the minimal logging interface used by the reporter.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// DeviceStatus is a device as shown to API clients.
type DeviceStatus struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Room         string     `json:"room"`
	DeviceType   string     `json:"device_type"`
	MQTTTopic    string     `json:"mqtt_topic"`
	StatusTopic  string     `json:"status_topic,omitempty"`
	BatteryTopic string     `json:"battery_topic,omitempty"`
	Enabled      bool       `json:"enabled"`
	LastCommand  string     `json:"last_command,omitempty"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
}

func newDeviceStatus(d device.Device) DeviceStatus {
	return DeviceStatus{
		ID:           d.ID,
		Name:         d.Name,
		Room:         d.Room,
		DeviceType:   d.Kind,
		MQTTTopic:    d.BusTopic,
		StatusTopic:  d.StatusTopic,
		BatteryTopic: d.BatteryTopic,
		Enabled:      d.Enabled,
	}
}

// RoomInfo summarises one room.
type RoomInfo struct {
	Name          string   `json:"name"`
	BlindCount    int      `json:"blind_count"`
	EnabledBlinds int      `json:"enabled_blinds"`
	Blinds        []string `json:"blinds"`
}

// RegistrySnapshot groups enabled devices by room. Order lists the rooms
// sorted by name; within a room, devices keep registry order.
type RegistrySnapshot struct {
	Rooms map[string][]DeviceStatus `json:"rooms"`
	Order []string                  `json:"-"`
}

// RoomsOverview lists every configured room with its counts.
type RoomsOverview struct {
	Rooms      []string   `json:"rooms"`
	TotalRooms int        `json:"total_rooms"`
	Details    []RoomInfo `json:"details"`
	Timestamp  time.Time  `json:"timestamp"`
}

// SystemStatus is the response body for GET /status.
type SystemStatus struct {
	Status        string     `json:"status"`
	MQTTConnected bool       `json:"mqtt_connected"`
	TotalBlinds   int        `json:"total_blinds"`
	EnabledBlinds int        `json:"enabled_blinds"`
	Rooms         []RoomInfo `json:"rooms"`
	Uptime        string     `json:"uptime"`
	Version       string     `json:"version"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLastCommands sets the source for last_command and last_update.
func WithLastCommands(src history.LastCommandSource) Option {
	return func(r *Reporter) { r.lastCmds = src }
}

// WithVersion sets the version string reported by SystemStatus.
func WithVersion(v string) Option {
	return func(r *Reporter) { r.version = v }
}

// WithClock replaces time.Now. The start time is taken from the clock
// when the reporter is created.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithLogger sets the reporter logger.
func WithLogger(l Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// Reporter builds status views.
type Reporter struct {
	registry SnapshotSource
	bus      Connectivity
	lastCmds history.LastCommandSource
	version  string
	now      func() time.Time
	started  time.Time
	logger   Logger
}

// NewReporter creates a reporter. Uptime is measured from this call.
func NewReporter(registry SnapshotSource, bus Connectivity, opts ...Option) *Reporter {
	r := &Reporter{
		registry: registry,
		bus:      bus,
		version:  "dev",
		now:      time.Now,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.started = r.now()
	return r
}

// RegistrySnapshot returns enabled devices grouped by room.
func (r *Reporter) RegistrySnapshot(ctx context.Context) RegistrySnapshot {
	snap := r.registry.Snapshot()
	byRoom := snap.EnabledByRoom()

	out := RegistrySnapshot{
		Rooms: make(map[string][]DeviceStatus, len(byRoom)),
		Order: snap.Rooms(),
	}
	enabled := snap.EnabledDevices()
	last := r.lastCommands(ctx, enabled)
	for room, devices := range byRoom {
		statuses := make([]DeviceStatus, 0, len(devices))
		for _, d := range devices {
			statuses = append(statuses, r.withLast(newDeviceStatus(d), last))
		}
		out.Rooms[room] = statuses
	}
	return out
}

// EnabledDevices returns every enabled device in registry order.
func (r *Reporter) EnabledDevices(ctx context.Context) []DeviceStatus {
	enabled := r.registry.Snapshot().EnabledDevices()
	last := r.lastCommands(ctx, enabled)
	out := make([]DeviceStatus, 0, len(enabled))
	for _, d := range enabled {
		out = append(out, r.withLast(newDeviceStatus(d), last))
	}
	return out
}

// RoomsOverview lists the rooms with enabled devices, sorted by name.
func (r *Reporter) RoomsOverview() RoomsOverview {
	details := roomInfo(r.registry.Snapshot())
	rooms := make([]string, len(details))
	for i, d := range details {
		rooms[i] = d.Name
	}
	return RoomsOverview{
		Rooms:      rooms,
		TotalRooms: len(rooms),
		Details:    details,
		Timestamp:  r.now().UTC(),
	}
}

// SystemStatus reports health, connectivity, counts and uptime. The
// system is healthy only when the bus is connected and at least one
// device is enabled.
func (r *Reporter) SystemStatus() SystemStatus {
	snap := r.registry.Snapshot()
	connected := r.bus.IsConnected()
	enabled := snap.EnabledCount()

	health := Degraded
	if connected && enabled > 0 {
		health = Healthy
	}

	return SystemStatus{
		Status:        health,
		MQTTConnected: connected,
		TotalBlinds:   snap.Len(),
		EnabledBlinds: enabled,
		Rooms:         roomInfo(snap),
		Uptime:        FormatUptime(r.Uptime()),
		Version:       r.version,
		Timestamp:     r.now().UTC(),
	}
}

// Uptime returns the time since the reporter was created.
func (r *Reporter) Uptime() time.Duration {
	return r.now().Sub(r.started)
}

func (r *Reporter) lastCommands(ctx context.Context, devices []device.Device) map[string]history.LastCommand {
	if r.lastCmds == nil || len(devices) == 0 {
		return nil
	}
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}

	ctx, cancel := context.WithTimeout(ctx, lastCommandTimeout)
	defer cancel()

	last, err := r.lastCmds.LastCommands(ctx, ids)
	if err != nil {
		r.logger.Warn("last command lookup failed", "error", err)
		return nil
	}
	return last
}

func (r *Reporter) withLast(s DeviceStatus, last map[string]history.LastCommand) DeviceStatus {
	lc, ok := last[s.ID]
	if !ok {
		return s
	}
	at := lc.At
	s.LastCommand = lc.Command
	s.LastUpdate = &at
	return s
}

// roomInfo summarises the rooms that have at least one enabled device,
// sorted by name.
func roomInfo(snap *device.Snapshot) []RoomInfo {
	grouped := snap.EnabledByRoom()
	rooms := make([]RoomInfo, 0, len(grouped))
	for _, name := range snap.Rooms() {
		devices := grouped[name]
		ids := make([]string, len(devices))
		for i, d := range devices {
			ids[i] = d.ID
		}
		rooms = append(rooms, RoomInfo{
			Name:          name,
			BlindCount:    len(devices),
			EnabledBlinds: len(devices),
			Blinds:        ids,
		})
	}
	return rooms
}

// FormatUptime renders d as "Xd Xh Xm Xs", dropping leading zero units:
// 59s, 1m 0s, 1h 0m 5s, 2d 0h 0m 0s.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
