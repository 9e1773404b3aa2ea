package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/tabi-core/internal/audit"
	"github.com/nerrad567/tabi-core/internal/device"
)

// EventConfigChanged is the hub channel for registry changes.
const EventConfigChanged = "blind.config_changed"

// defaultDeviceType is applied when a request omits device_type.
const defaultDeviceType = "motorized_blind"

// BlindRequest is the body for adding or replacing a blind.
type BlindRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Room         string `json:"room"`
	MQTTTopic    string `json:"mqtt_topic"`
	DeviceType   string `json:"device_type"`
	Enabled      *bool  `json:"enabled"` // defaults to true
	StatusTopic  string `json:"status_topic,omitempty"`
	BatteryTopic string `json:"battery_topic,omitempty"`
}

// device converts the request into a Device. Registry invariants
// (unique ID, non-empty topic) are checked by the registry itself.
func (b BlindRequest) device() device.Device {
	d := device.Device{
		ID:           strings.TrimSpace(b.ID),
		Name:         b.Name,
		Room:         b.Room,
		BusTopic:     b.MQTTTopic,
		Kind:         b.DeviceType,
		Enabled:      true,
		StatusTopic:  b.StatusTopic,
		BatteryTopic: b.BatteryTopic,
	}
	if d.Kind == "" {
		d.Kind = defaultDeviceType
	}
	if b.Enabled != nil {
		d.Enabled = *b.Enabled
	}
	return d
}

// decodeBlind reads a BlindRequest body. It writes the error response and
// returns false when the body is unusable.
func decodeBlind(w http.ResponseWriter, r *http.Request) (BlindRequest, bool) {
	var req BlindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid JSON body: "+err.Error())
		return BlindRequest{}, false
	}
	if strings.TrimSpace(req.Name) == "" {
		writeValidationError(w, "name is required")
		return BlindRequest{}, false
	}
	if strings.TrimSpace(req.Room) == "" {
		writeValidationError(w, "room is required")
		return BlindRequest{}, false
	}
	return req, true
}

// handleAddBlind registers a new blind.
func (s *Server) handleAddBlind(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBlind(w, r)
	if !ok {
		return
	}
	d := req.device()
	if d.ID == "" {
		writeValidationError(w, "id is required")
		return
	}

	if err := s.registry.Add(d); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("blind added", "blind_id", d.ID, "room", d.Room, "request_id", requestIDFrom(r))

	if !s.commitConfig(w, r, audit.ActionAdd, d.ID, map[string]any{"blind": d}) {
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleUpdateBlind replaces a blind definition. The ID comes from the path;
// a body ID, if given, must match it.
func (s *Server) handleUpdateBlind(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "blind_id")
	req, ok := decodeBlind(w, r)
	if !ok {
		return
	}
	if req.ID != "" && strings.TrimSpace(req.ID) != id {
		writeValidationError(w, "id in body does not match path")
		return
	}
	req.ID = id
	d := req.device()

	if err := s.registry.Update(d); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("blind updated", "blind_id", id, "request_id", requestIDFrom(r))

	if !s.commitConfig(w, r, audit.ActionUpdate, id, map[string]any{"blind": d}) {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRemoveBlind deletes a blind. The last blind cannot be removed.
func (s *Server) handleRemoveBlind(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "blind_id")

	removed, err := s.registry.Remove(id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("blind removed", "blind_id", id, "request_id", requestIDFrom(r))

	if s.forgetter != nil {
		if err := s.forgetter.Forget(r.Context(), id); err != nil {
			s.logger.Warn("failed to forget last command", "blind_id", id, "error", err)
		}
	}

	if !s.commitConfig(w, r, audit.ActionRemove, id, map[string]any{"blind": removed}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Blind removed",
		"blind":   removed,
	})
}

// handleEnableBlind includes a blind in dispatch again.
func (s *Server) handleEnableBlind(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

// handleDisableBlind excludes a blind from dispatch.
func (s *Server) handleDisableBlind(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := pathParam(r, "blind_id")

	if err := s.registry.SetEnabled(id, enabled); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("blind enabled state changed", "blind_id", id, "enabled", enabled, "request_id", requestIDFrom(r))

	op := audit.ActionDisable
	if enabled {
		op = audit.ActionEnable
	}
	if !s.commitConfig(w, r, op, id, nil) {
		return
	}

	d, _ := s.registry.Lookup(id)
	writeJSON(w, http.StatusOK, d)
}

// commitConfig persists the registry, records the change and announces it.
// On a save failure it writes a CONFIG_ERROR response and returns false;
// the in-memory registry keeps the new state either way.
func (s *Server) commitConfig(w http.ResponseWriter, r *http.Request, op, id string, details map[string]any) bool {
	s.hub.Broadcast(EventConfigChanged, map[string]any{
		"op":       op,
		"blind_id": id,
	})

	if err := s.saveDevices(); err != nil {
		s.logger.Error("saving configuration failed",
			"op", op,
			"blind_id", id,
			"request_id", requestIDFrom(r),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, ErrCodeConfig, msgConfig, "details", err.Error())
		return false
	}

	if s.audit != nil {
		entry := &audit.Entry{
			Action:    op,
			BlindID:   id,
			RequestID: requestIDFrom(r),
			Details:   details,
		}
		if err := s.audit.Create(r.Context(), entry); err != nil {
			s.logger.Warn("failed to record configuration audit", "op", op, "blind_id", id, "error", err)
		}
	}
	return true
}

// saveDevices writes the current registry to the store. The snapshot is
// taken under saveMu, so a save that finishes last never carries an older
// registry than one that finished before it.
func (s *Server) saveDevices() error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.store.SaveDevices(s.registry.Snapshot().All())
}

// handleConfigAudit lists recorded configuration changes.
//
// Query parameters:
//   - action: add, update, remove, enable or disable
//   - blind_id: only changes to this blind
//   - limit: page size, default 50, capped at 200
//   - offset: entries to skip
func (s *Server) handleConfigAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "configuration audit is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		BlindID: q.Get("blind_id"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeValidationError(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if errors.Is(err, audit.ErrUnknownAction) {
		writeValidationError(w, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("listing configuration audit failed", "request_id", requestIDFrom(r), "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
