package dispatch

import (
	"strings"
	"time"

	"github.com/nerrad567/tabi-core/internal/command"
)

// Kind identifies how a dispatch was targeted.
type Kind string

// Dispatch kinds.
const (
	KindSingle Kind = "single"
	KindRoom   Kind = "room"
	KindAll    Kind = "all"
)

// allLabel is the target label used for broadcast dispatches.
const allLabel = "all"

// Target is a dispatch scope: one device, one room, or everything.
type Target struct {
	Kind     Kind
	DeviceID string
	Room     string
}

// ByID targets a single device.
func ByID(id string) Target { return Target{Kind: KindSingle, DeviceID: id} }

// ByRoom targets every enabled device in a room.
func ByRoom(room string) Target { return Target{Kind: KindRoom, Room: room} }

// All targets every enabled device.
func All() Target { return Target{Kind: KindAll} }

// Label returns the human-facing name of the target.
func (t Target) Label() string {
	switch t.Kind {
	case KindSingle:
		return t.DeviceID
	case KindRoom:
		return t.Room
	default:
		return allLabel
	}
}

// Status is the result of one publish attempt.
type Status string

// Outcome statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome records what happened to one device during a dispatch.
type Outcome struct {
	DeviceID   string `json:"blind_id"`
	DeviceName string `json:"blind_name"`
	Room       string `json:"room,omitempty"`
	Status     Status `json:"status"`
	Topic      string `json:"topic,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchResult aggregates a room or broadcast dispatch.
//
// Total always equals Successful+Failed and len(Outcomes); Outcomes are in
// the order devices were resolved from the registry.
type BatchResult struct {
	ID         string          `json:"id"`
	Command    command.Command `json:"command"`
	Target     string          `json:"target"`
	Total      int             `json:"total_blinds"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Outcomes   []Outcome       `json:"results"`
	Timestamp  time.Time       `json:"timestamp"`
}

// add appends an outcome and keeps the counters in step.
func (b *BatchResult) add(o Outcome) {
	b.Outcomes = append(b.Outcomes, o)
	b.Total++
	if o.Status == StatusSuccess {
		b.Successful++
	} else {
		b.Failed++
	}
}

// SingleResult is returned by a successful single-device dispatch.
type SingleResult struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	DeviceID   string          `json:"blind_id"`
	DeviceName string          `json:"blind_name"`
	Room       string          `json:"room"`
	Command    command.Command `json:"command"`
	Topic      string          `json:"topic"`
	Timestamp  time.Time       `json:"timestamp"`
}

func newSingleResult(id string, o Outcome, cmd command.Command, at time.Time) *SingleResult {
	return &SingleResult{
		ID:         id,
		Status:     strings.ToLower(cmd.Wire()),
		DeviceID:   o.DeviceID,
		DeviceName: o.DeviceName,
		Room:       o.Room,
		Command:    cmd,
		Topic:      o.Topic,
		Timestamp:  at,
	}
}

// Record is handed to every Recorder once a dispatch has reached the bus.
type Record struct {
	ID        string
	Kind      Kind
	Target    string
	Command   command.Command
	Outcomes  []Outcome
	Timestamp time.Time
}
