package status

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/history"
)

type fakeBus bool

func (b fakeBus) IsConnected() bool { return bool(b) }

type fakeLast struct {
	data map[string]history.LastCommand
	err  error
}

func (f fakeLast) LastCommands(_ context.Context, ids []string) (map[string]history.LastCommand, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]history.LastCommand)
	for _, id := range ids {
		if lc, ok := f.data[id]; ok {
			out[id] = lc
		}
	}
	return out, nil
}

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T, devices ...device.Device) *device.Registry {
	t.Helper()
	if len(devices) == 0 {
		devices = []device.Device{
			{ID: "b1", Name: "Bed Left", Room: "bed", BusTopic: "t/b1", Kind: "motorized_blind", Enabled: true},
			{ID: "b2", Name: "Bed Right", Room: "bed", BusTopic: "t/b2", Kind: "motorized_blind", Enabled: true},
			{ID: "b3", Name: "Kitchen", Room: "kit", BusTopic: "t/b3", Kind: "motorized_blind", Enabled: false},
			{ID: "b4", Name: "Attic", Room: "attic", BusTopic: "t/b4", Kind: "venetian", Enabled: true},
		}
	}
	r, err := device.NewRegistry(devices)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func fixedClock(at *time.Time) Option {
	return WithClock(func() time.Time { return *at })
}

func TestRegistrySnapshot(t *testing.T) {
	last := fakeLast{data: map[string]history.LastCommand{
		"b2": {Command: "CLOSE", At: start},
		"b3": {Command: "OPEN", At: start},
	}}
	r := NewReporter(testRegistry(t), fakeBus(true), WithLastCommands(last))

	snap := r.RegistrySnapshot(context.Background())

	if want := []string{"attic", "bed"}; !reflect.DeepEqual(snap.Order, want) {
		t.Errorf("Order = %v, want %v", snap.Order, want)
	}
	if _, ok := snap.Rooms["kit"]; ok {
		t.Error("room with only disabled devices included")
	}

	bed := snap.Rooms["bed"]
	if len(bed) != 2 || bed[0].ID != "b1" || bed[1].ID != "b2" {
		t.Fatalf("bed = %+v", bed)
	}
	if bed[0].LastCommand != "" || bed[0].LastUpdate != nil {
		t.Errorf("b1 has last command %q", bed[0].LastCommand)
	}
	if bed[1].LastCommand != "CLOSE" || bed[1].LastUpdate == nil || !bed[1].LastUpdate.Equal(start) {
		t.Errorf("b2 last command = %q at %v", bed[1].LastCommand, bed[1].LastUpdate)
	}
}

func TestRegistrySnapshot_LastCommandErrorIsIgnored(t *testing.T) {
	r := NewReporter(testRegistry(t), fakeBus(true), WithLastCommands(fakeLast{err: errors.New("redis down")}))

	snap := r.RegistrySnapshot(context.Background())
	if len(snap.Rooms["bed"]) != 2 {
		t.Errorf("bed = %+v", snap.Rooms["bed"])
	}
}

func TestDeviceStatus_JSON(t *testing.T) {
	r := NewReporter(testRegistry(t), fakeBus(true))
	devices := r.EnabledDevices(context.Background())
	if len(devices) != 3 {
		t.Fatalf("EnabledDevices() = %d, want 3", len(devices))
	}

	data, err := json.Marshal(devices[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(data, &got)
	for _, key := range []string{"id", "name", "room", "device_type", "mqtt_topic", "enabled"} {
		if _, ok := got[key]; !ok {
			t.Errorf("JSON missing %q: %s", key, data)
		}
	}
	for _, key := range []string{"status_topic", "battery_topic", "last_command", "last_update"} {
		if _, ok := got[key]; ok {
			t.Errorf("JSON has empty %q: %s", key, data)
		}
	}
}

func TestRoomsOverview(t *testing.T) {
	reg := testRegistry(t)
	r := NewReporter(reg, fakeBus(true))
	ov := r.RoomsOverview()

	// "kit" only holds a disabled device, so it is not a dispatchable room.
	if want := []string{"attic", "bed"}; !reflect.DeepEqual(ov.Rooms, want) {
		t.Errorf("Rooms = %v, want %v", ov.Rooms, want)
	}
	if want := reg.Snapshot().Rooms(); !reflect.DeepEqual(ov.Rooms, want) {
		t.Errorf("Rooms = %v, want registry rooms %v", ov.Rooms, want)
	}
	if ov.TotalRooms != 2 {
		t.Errorf("TotalRooms = %d, want 2", ov.TotalRooms)
	}

	want := []RoomInfo{
		{Name: "attic", BlindCount: 1, EnabledBlinds: 1, Blinds: []string{"b4"}},
		{Name: "bed", BlindCount: 2, EnabledBlinds: 2, Blinds: []string{"b1", "b2"}},
	}
	if !reflect.DeepEqual(ov.Details, want) {
		t.Errorf("Details = %+v, want %+v", ov.Details, want)
	}
}

func TestRoomsOverview_NothingEnabled(t *testing.T) {
	reg := testRegistry(t, device.Device{ID: "b1", Room: "bed", BusTopic: "t/b1", Enabled: false})
	ov := NewReporter(reg, fakeBus(true)).RoomsOverview()

	if ov.TotalRooms != 0 || len(ov.Rooms) != 0 {
		t.Errorf("RoomsOverview() = %+v, want no rooms", ov)
	}
	if ov.Details == nil {
		t.Error("Details = nil, want empty slice")
	}
}

func TestSystemStatus(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		devices   []device.Device
		want      string
	}{
		{"connected with enabled devices", true, nil, Healthy},
		{"disconnected", false, nil, Degraded},
		{"nothing enabled", true, []device.Device{
			{ID: "b1", Room: "bed", BusTopic: "t/b1", Enabled: false},
		}, Degraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReporter(testRegistry(t, tt.devices...), fakeBus(tt.connected), WithVersion("1.2.3"))
			st := r.SystemStatus()
			if st.Status != tt.want {
				t.Errorf("Status = %q, want %q", st.Status, tt.want)
			}
			if st.MQTTConnected != tt.connected || st.Version != "1.2.3" {
				t.Errorf("status = %+v", st)
			}
		})
	}
}

func TestSystemStatus_CountsAndUptime(t *testing.T) {
	now := start
	r := NewReporter(testRegistry(t), fakeBus(true), fixedClock(&now))
	now = start.Add(26*time.Hour + 3*time.Minute + 4*time.Second)

	st := r.SystemStatus()
	if st.TotalBlinds != 4 || st.EnabledBlinds != 3 {
		t.Errorf("counts = %d/%d, want 4/3", st.TotalBlinds, st.EnabledBlinds)
	}
	if st.Uptime != "1d 2h 3m 4s" {
		t.Errorf("Uptime = %q", st.Uptime)
	}
	if len(st.Rooms) != 2 {
		t.Errorf("Rooms = %+v, want attic and bed only", st.Rooms)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m 0s"},
		{time.Hour + 5*time.Second, "1h 0m 5s"},
		{48 * time.Hour, "2d 0h 0m 0s"},
		{1500 * time.Millisecond, "1s"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
