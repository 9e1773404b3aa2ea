package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/history"
)

// ConfigView is the public projection of the running configuration.
// The MQTT password is never included.
type ConfigView struct {
	MQTT        MQTTView        `json:"mqtt"`
	Server      ServerView      `json:"server"`
	Blinds      []device.Device `json:"blinds"`
	TotalBlinds int             `json:"total_blinds"`
}

// MQTTView is the broker section of ConfigView.
type MQTTView struct {
	BrokerHost string `json:"broker_host"`
	BrokerPort int    `json:"broker_port"`
	ClientID   string `json:"client_id"`
	Username   string `json:"username,omitempty"`
}

// ServerView is the listener section of ConfigView.
type ServerView struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// HistoryResponse is returned by GET /blinds/history.
type HistoryResponse struct {
	Entries   []history.Entry `json:"entries"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleDispatchSingle sends a command to one blind.
func (s *Server) handleDispatchSingle(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.DispatchSingle(r.Context(), pathParam(r, "blind_id"), pathParam(r, "action"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDispatchRoom sends a command to every enabled blind in a room.
// Partial failure is still a 200; callers read successful/failed.
func (s *Server) handleDispatchRoom(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.DispatchRoom(r.Context(), pathParam(r, "room"), pathParam(r, "action"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDispatchAll sends a command to every enabled blind.
func (s *Server) handleDispatchAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.DispatchAll(r.Context(), pathParam(r, "action"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBlindsStatus returns every blind grouped by room.
func (s *Server) handleBlindsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reporter.RegistrySnapshot(r.Context()))
}

// handleRooms returns the room overview.
func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reporter.RoomsOverview())
}

// handleGetConfig returns the public configuration with enabled blinds only.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	blinds := s.registry.EnabledDevices()
	if blinds == nil {
		blinds = []device.Device{}
	}

	writeJSON(w, http.StatusOK, ConfigView{
		MQTT: MQTTView{
			BrokerHost: s.mqttCfg.Broker.Host,
			BrokerPort: s.mqttCfg.Broker.Port,
			ClientID:   s.mqttCfg.Broker.ClientID,
			Username:   s.mqttCfg.Auth.Username,
		},
		Server: ServerView{
			Host: s.cfg.Host,
			Port: s.cfg.Port,
		},
		Blinds:      blinds,
		TotalBlinds: len(blinds),
	})
}

// handleHistory returns the most recent dispatch log rows.
//
// Query parameters:
//   - limit: number of rows (default 50, capped at 500)
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "Command history is disabled")
		return
	}

	limit := history.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, history.ErrInvalidLimit) {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		s.logger.Error("reading command history failed", "request_id", requestIDFrom(r), "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries:   entries,
		Count:     len(entries),
		Timestamp: time.Now().UTC(),
	})
}
