package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tabi-core/internal/command"
	"github.com/nerrad567/tabi-core/internal/device"
)

// EventCommand is the hub channel dispatch events are broadcast on.
const EventCommand = "blind.command"

// Publisher sends a payload to a bus topic.
//
// Implementations must be safe for concurrent use; concurrent HTTP requests
// share one Publisher.
type Publisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Recorder receives a Record after every dispatch that reached the bus.
// Recorder failures are logged and never change the dispatch result.
type Recorder interface {
	RecordDispatch(ctx context.Context, rec Record) error
}

// EventHub broadcasts dispatch events to live subscribers.
type EventHub interface {
	Broadcast(channel string, payload any)
}

// SnapshotSource yields the current registry view.
type SnapshotSource interface {
	Snapshot() *device.Snapshot
}

// Logger is the minimal logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder adds a recorder. Recorders run in the order they were added.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

// WithEventHub sets the hub dispatch events are broadcast to.
func WithEventHub(h EventHub) Option {
	return func(s *Service) {
		s.hub = h
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service resolves targets against the registry and publishes commands.
type Service struct {
	registry  SnapshotSource
	publisher Publisher
	recorders []Recorder
	hub       EventHub
	logger    Logger
	now       func() time.Time
}

// New creates a dispatch service.
func New(registry SnapshotSource, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		publisher: publisher,
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch routes to DispatchSingle, DispatchRoom or DispatchAll. For a
// single target the SingleResult is returned and the BatchResult is nil;
// otherwise the reverse.
func (s *Service) Dispatch(ctx context.Context, target Target, action string) (*SingleResult, *BatchResult, error) {
	switch target.Kind {
	case KindSingle:
		res, err := s.DispatchSingle(ctx, target.DeviceID, action)
		return res, nil, err
	case KindRoom:
		res, err := s.DispatchRoom(ctx, target.Room, action)
		return nil, res, err
	default:
		res, err := s.DispatchAll(ctx, action)
		return nil, res, err
	}
}

// DispatchSingle publishes action to one device.
//
// Errors are checked in order: invalid action, unknown device, disabled
// device, then the publish itself (*BusError).
func (s *Service) DispatchSingle(ctx context.Context, id, action string) (*SingleResult, error) {
	cmd, err := command.Parse(action)
	if err != nil {
		return nil, err
	}

	dev, ok := s.registry.Snapshot().Lookup(id)
	if !ok {
		return nil, &TargetError{Err: ErrDeviceNotFound, DeviceID: id}
	}
	if !dev.Enabled {
		return nil, &TargetError{Err: ErrDeviceDisabled, DeviceID: id}
	}

	dispatchID := uuid.NewString()
	outcome, pubErr := s.publishTo(dev, cmd)
	at := s.now().UTC()

	s.finish(ctx, Record{
		ID:        dispatchID,
		Kind:      KindSingle,
		Target:    id,
		Command:   cmd,
		Outcomes:  []Outcome{outcome},
		Timestamp: at,
	})

	if pubErr != nil {
		return nil, &BusError{DeviceID: dev.ID, Topic: dev.BusTopic, Err: pubErr}
	}
	return newSingleResult(dispatchID, outcome, cmd, at), nil
}

// DispatchRoom publishes action to every enabled device in room.
//
// An empty or unknown room, or one where every device is disabled, returns
// ErrRoomNotFound. Otherwise the batch runs to completion and per-device
// failures are reported in the result.
func (s *Service) DispatchRoom(ctx context.Context, room, action string) (*BatchResult, error) {
	cmd, err := command.Parse(action)
	if err != nil {
		return nil, err
	}

	devices := s.registry.Snapshot().DevicesInRoom(room)
	if len(devices) == 0 {
		return nil, &TargetError{Err: ErrRoomNotFound, Room: room}
	}
	return s.fanOut(ctx, KindRoom, room, cmd, devices), nil
}

// DispatchAll publishes action to every enabled device.
func (s *Service) DispatchAll(ctx context.Context, action string) (*BatchResult, error) {
	cmd, err := command.Parse(action)
	if err != nil {
		return nil, err
	}

	devices := s.registry.Snapshot().EnabledDevices()
	if len(devices) == 0 {
		return nil, ErrNoEnabledDevices
	}
	return s.fanOut(ctx, KindAll, allLabel, cmd, devices), nil
}

// fanOut attempts every device in order. It does not observe ctx: a batch
// that has started always finishes so the result describes every device.
func (s *Service) fanOut(ctx context.Context, kind Kind, label string, cmd command.Command, devices []device.Device) *BatchResult {
	res := &BatchResult{
		ID:       uuid.NewString(),
		Command:  cmd,
		Target:   label,
		Outcomes: make([]Outcome, 0, len(devices)),
	}
	for _, dev := range devices {
		o, _ := s.publishTo(dev, cmd)
		res.add(o)
	}
	res.Timestamp = s.now().UTC()

	if res.Failed > 0 {
		s.logger.Warn("batch dispatch partially failed",
			"dispatch_id", res.ID,
			"kind", string(kind),
			"target", label,
			"command", cmd.Wire(),
			"successful", res.Successful,
			"failed", res.Failed,
		)
	}

	s.finish(ctx, Record{
		ID:        res.ID,
		Kind:      kind,
		Target:    label,
		Command:   cmd,
		Outcomes:  res.Outcomes,
		Timestamp: res.Timestamp,
	})
	return res
}

// publishTo performs one publish and describes it as an Outcome.
func (s *Service) publishTo(dev device.Device, cmd command.Command) (Outcome, error) {
	o := Outcome{
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Room:       dev.Room,
		Topic:      dev.BusTopic,
	}
	if err := s.publisher.Publish(dev.BusTopic, cmd.Payload()); err != nil {
		o.Status = StatusError
		o.Error = err.Error()
		s.logger.Error("command publish failed",
			"device_id", dev.ID,
			"topic", dev.BusTopic,
			"command", cmd.Wire(),
			"error", err,
		)
		return o, err
	}
	o.Status = StatusSuccess
	s.logger.Info("command published",
		"device_id", dev.ID,
		"topic", dev.BusTopic,
		"command", cmd.Wire(),
	)
	return o, nil
}

// finish hands the record to every recorder and broadcasts the event.
// Recording uses a context detached from the caller's cancellation so an
// aborted HTTP request still leaves a history entry.
func (s *Service) finish(ctx context.Context, rec Record) {
	rctx := context.WithoutCancel(ctx)
	for _, r := range s.recorders {
		if err := r.RecordDispatch(rctx, rec); err != nil {
			s.logger.Warn("failed to record dispatch",
				"dispatch_id", rec.ID,
				"error", err,
			)
		}
	}

	if s.hub == nil {
		return
	}
	successful := 0
	for _, o := range rec.Outcomes {
		if o.Status == StatusSuccess {
			successful++
		}
	}
	s.hub.Broadcast(EventCommand, map[string]any{
		"dispatch_id": rec.ID,
		"kind":        string(rec.Kind),
		"target":      rec.Target,
		"command":     rec.Command.Wire(),
		"total":       len(rec.Outcomes),
		"successful":  successful,
		"failed":      len(rec.Outcomes) - successful,
		"results":     rec.Outcomes,
		"timestamp":   rec.Timestamp,
	})
}
