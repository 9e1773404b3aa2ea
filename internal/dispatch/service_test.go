package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tabi-core/internal/command"
	"github.com/nerrad567/tabi-core/internal/device"
)

// fakePublisher records publishes and fails for configured topics.
type fakePublisher struct {
	mu        sync.Mutex
	calls     []publishCall
	failTopic map[string]error
	connected bool
}

type publishCall struct {
	Topic   string
	Payload string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failTopic: map[string]error{}, connected: true}
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{Topic: topic, Payload: string(payload)})
	return p.failTopic[topic]
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func (p *fakePublisher) published() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

type fakeRecorder struct {
	records []Record
	err     error
}

func (r *fakeRecorder) RecordDispatch(_ context.Context, rec Record) error {
	r.records = append(r.records, rec)
	return r.err
}

type fakeHub struct {
	channels []string
	payloads []any
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.channels = append(h.channels, channel)
	h.payloads = append(h.payloads, payload)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *device.Registry {
	t.Helper()
	r, err := device.NewRegistry([]device.Device{
		{ID: "b1", Name: "Bed Left", Room: "bed", BusTopic: "t/b1", Kind: "motorized_blind", Enabled: true},
		{ID: "b2", Name: "Bed Right", Room: "bed", BusTopic: "t/b2", Kind: "motorized_blind", Enabled: true},
		{ID: "b3", Name: "Kitchen", Room: "kit", BusTopic: "t/b3", Kind: "motorized_blind", Enabled: false},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakePublisher) {
	t.Helper()
	pub := newFakePublisher()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(testRegistry(t), pub, opts...), pub
}

func TestDispatchSingle_Success(t *testing.T) {
	svc, pub := newTestService(t)

	res, err := svc.DispatchSingle(context.Background(), "b1", "open")
	if err != nil {
		t.Fatalf("DispatchSingle() error = %v", err)
	}

	want := []publishCall{{Topic: "t/b1", Payload: "OPEN"}}
	if got := pub.published(); !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if res.Status != "open" || res.DeviceID != "b1" || res.DeviceName != "Bed Left" || res.Room != "bed" {
		t.Errorf("result = %+v", res)
	}
	if res.Command != command.Open || res.Topic != "t/b1" {
		t.Errorf("result command/topic = %v/%q", res.Command, res.Topic)
	}
	if !res.Timestamp.Equal(fixedNow) {
		t.Errorf("Timestamp = %v, want %v", res.Timestamp, fixedNow)
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}
}

func TestDispatchSingle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		action  string
		wantErr error
	}{
		{"unknown device", "nope", "OPEN", ErrDeviceNotFound},
		{"disabled device", "b3", "OPEN", ErrDeviceDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub := newTestService(t)

			_, err := svc.DispatchSingle(context.Background(), tt.id, tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DispatchSingle() error = %v, want %v", err, tt.wantErr)
			}
			var te *TargetError
			if !errors.As(err, &te) || te.DeviceID != tt.id {
				t.Errorf("error target = %+v, want device %q", te, tt.id)
			}
			if n := len(pub.published()); n != 0 {
				t.Errorf("published %d messages, want 0", n)
			}
		})
	}
}

func TestDispatch_InvalidActionCheckedFirst(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	targets := []Target{ByID("nope"), ByID("b3"), ByRoom("garage"), All()}
	for _, target := range targets {
		_, _, err := svc.Dispatch(ctx, target, "dance")
		var iae *command.InvalidActionError
		if !errors.As(err, &iae) {
			t.Errorf("Dispatch(%+v, dance) error = %v, want InvalidActionError", target, err)
			continue
		}
		if iae.Raw != "dance" {
			t.Errorf("InvalidActionError.Raw = %q, want dance", iae.Raw)
		}
	}
	if n := len(pub.published()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

func TestDispatchSingle_BusError(t *testing.T) {
	rec := &fakeRecorder{}
	svc, pub := newTestService(t, WithRecorder(rec))
	pub.failTopic["t/b2"] = errors.New("broker gone")

	_, err := svc.DispatchSingle(context.Background(), "b2", "Stop")
	var be *BusError
	if !errors.As(err, &be) {
		t.Fatalf("DispatchSingle() error = %v, want *BusError", err)
	}
	if be.DeviceID != "b2" || be.Topic != "t/b2" {
		t.Errorf("BusError = %+v", be)
	}
	if len(rec.records) != 1 || rec.records[0].Outcomes[0].Status != StatusError {
		t.Errorf("records = %+v, want one failed outcome", rec.records)
	}
}

func TestDispatchRoom_SkipsDisabled(t *testing.T) {
	svc, pub := newTestService(t)

	res, err := svc.DispatchRoom(context.Background(), "bed", "CLOSE")
	if err != nil {
		t.Fatalf("DispatchRoom() error = %v", err)
	}
	want := []publishCall{{"t/b1", "CLOSE"}, {"t/b2", "CLOSE"}}
	if got := pub.published(); !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if res.Target != "bed" || res.Total != 2 || res.Successful != 2 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchRoom_NotFound(t *testing.T) {
	svc, pub := newTestService(t)

	// kit only has a disabled device; garage does not exist.
	for _, room := range []string{"kit", "garage", ""} {
		_, err := svc.DispatchRoom(context.Background(), room, "OPEN")
		if !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("DispatchRoom(%q) error = %v, want ErrRoomNotFound", room, err)
		}
	}
	if n := len(pub.published()); n != 0 {
		t.Errorf("published %d messages, want 0", n)
	}
}

func TestDispatchAll_PartialFailure(t *testing.T) {
	rec := &fakeRecorder{}
	hub := &fakeHub{}
	svc, pub := newTestService(t, WithRecorder(rec), WithEventHub(hub))
	pub.failTopic["t/b1"] = errors.New("timeout")

	res, err := svc.DispatchAll(context.Background(), "open")
	if err != nil {
		t.Fatalf("DispatchAll() error = %v", err)
	}

	want := []publishCall{{"t/b1", "OPEN"}, {"t/b2", "OPEN"}}
	if got := pub.published(); !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if res.Target != "all" || res.Total != 2 || res.Successful != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Outcomes[0].Status != StatusError || res.Outcomes[0].Error != "timeout" {
		t.Errorf("outcome[0] = %+v", res.Outcomes[0])
	}
	if res.Outcomes[1].Status != StatusSuccess || res.Outcomes[1].Error != "" {
		t.Errorf("outcome[1] = %+v", res.Outcomes[1])
	}

	if len(rec.records) != 1 || rec.records[0].ID != res.ID || rec.records[0].Kind != KindAll {
		t.Errorf("records = %+v", rec.records)
	}
	if len(hub.channels) != 1 || hub.channels[0] != EventCommand {
		t.Errorf("hub channels = %v, want [%s]", hub.channels, EventCommand)
	}
}

func TestDispatchAll_EveryPublishFails(t *testing.T) {
	svc, pub := newTestService(t)
	pub.failTopic["t/b1"] = errors.New("down")
	pub.failTopic["t/b2"] = errors.New("down")

	res, err := svc.DispatchAll(context.Background(), "STOP")
	if err != nil {
		t.Fatalf("DispatchAll() error = %v, want batch result", err)
	}
	if res.Total != 2 || res.Failed != 2 || res.Successful != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchAll_NoEnabledDevices(t *testing.T) {
	r, err := device.NewRegistry([]device.Device{
		{ID: "b1", Name: "Bed", Room: "bed", BusTopic: "t/b1", Enabled: false},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	pub := newFakePublisher()
	svc := New(r, pub)

	if _, err := svc.DispatchAll(context.Background(), "OPEN"); !errors.Is(err, ErrNoEnabledDevices) {
		t.Errorf("DispatchAll() error = %v, want ErrNoEnabledDevices", err)
	}
}

func TestDispatch_BatchCountsAlwaysAddUp(t *testing.T) {
	failures := []map[string]bool{
		{},
		{"t/b1": true},
		{"t/b2": true},
		{"t/b1": true, "t/b2": true},
	}
	for _, fail := range failures {
		svc, pub := newTestService(t)
		for topic := range fail {
			pub.failTopic[topic] = errors.New("fail")
		}
		res, err := svc.DispatchRoom(context.Background(), "bed", "open")
		if err != nil {
			t.Fatalf("DispatchRoom() error = %v", err)
		}
		if res.Total != res.Successful+res.Failed || res.Total != len(res.Outcomes) {
			t.Errorf("counts don't add up: %+v", res)
		}
		if res.Failed != len(fail) {
			t.Errorf("Failed = %d, want %d", res.Failed, len(fail))
		}
	}
}

func TestDispatch_RecorderFailureDoesNotFailDispatch(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	svc, _ := newTestService(t, WithRecorder(rec))

	if _, err := svc.DispatchSingle(context.Background(), "b1", "OPEN"); err != nil {
		t.Errorf("DispatchSingle() error = %v, want nil", err)
	}
	if len(rec.records) != 1 {
		t.Errorf("recorder called %d times, want 1", len(rec.records))
	}
}

func TestDispatch_CancelledContextStillCompletes(t *testing.T) {
	svc, pub := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.DispatchAll(ctx, "OPEN")
	if err != nil {
		t.Fatalf("DispatchAll() error = %v", err)
	}
	if res.Total != 2 || len(pub.published()) != 2 {
		t.Errorf("cancelled batch did not complete: %+v", res)
	}
}

func TestDispatch_RoutesByTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	single, batch, err := svc.Dispatch(ctx, ByID("b1"), "OPEN")
	if err != nil || single == nil || batch != nil {
		t.Errorf("Dispatch(ByID) = %v, %v, %v", single, batch, err)
	}
	single, batch, err = svc.Dispatch(ctx, ByRoom("bed"), "OPEN")
	if err != nil || single != nil || batch == nil || batch.Target != "bed" {
		t.Errorf("Dispatch(ByRoom) = %v, %v, %v", single, batch, err)
	}
	single, batch, err = svc.Dispatch(ctx, All(), "OPEN")
	if err != nil || single != nil || batch == nil || batch.Target != "all" {
		t.Errorf("Dispatch(All) = %v, %v, %v", single, batch, err)
	}
}

// Registry changes made mid-flight must not affect a batch that already
// resolved its devices.
func TestDispatch_ConcurrentWithRegistryChanges(t *testing.T) {
	reg := testRegistry(t)
	pub := newFakePublisher()
	svc := New(reg, pub)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := svc.DispatchRoom(context.Background(), "bed", "OPEN")
			if err != nil {
				return
			}
			if res.Total != res.Successful+res.Failed {
				t.Errorf("inconsistent result %+v", res)
			}
		}()
		go func(enabled bool) {
			defer wg.Done()
			_ = reg.SetEnabled("b2", enabled)
		}(i%2 == 0)
	}
	wg.Wait()
}

func TestTargetLabel(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{ByID("b1"), "b1"},
		{ByRoom("bed"), "bed"},
		{All(), "all"},
	}
	for _, tt := range tests {
		if got := tt.target.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}
