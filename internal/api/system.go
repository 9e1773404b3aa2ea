package api

import (
	"net/http"
	"time"
)

// HealthResponse is returned by /health and /hello-world.
type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth reports that the process is up. It does not check the bus;
// /status carries the degraded state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Message:   "Tabi Backend is running normally",
		Timestamp: time.Now().UTC(),
	})
}

// handlePing answers a liveness probe.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "pong",
		"timestamp": time.Now().UTC(),
	})
}

// handleSystemStatus returns the system status summary.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reporter.SystemStatus())
}

// handleMQTTInfo describes the bus connection.
func (s *Server) handleMQTTInfo(w http.ResponseWriter, _ *http.Request) {
	info := "MQTT client not configured"
	if s.bus != nil {
		info = s.bus.Info()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mqtt":      info,
		"timestamp": time.Now().UTC(),
	})
}
