package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath and defaultMetricsPath apply when the configuration leaves them blank.
const (
	defaultWSPath      = "/ws"
	defaultMetricsPath = "/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)
	if s.collectors != nil {
		r.Use(s.metricsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "Method not allowed")
	})

	r.Route("/blinds", func(r chi.Router) {
		// Commands
		r.Post("/id/{blind_id}/{action}", s.handleDispatchSingle)
		r.Post("/room/{room}/{action}", s.handleDispatchRoom)
		r.Post("/all/{action}", s.handleDispatchAll)

		// Views
		r.Get("/status", s.handleBlindsStatus)
		r.Get("/rooms", s.handleRooms)
		r.Get("/history", s.handleHistory)

		// Runtime configuration
		r.Route("/config", func(r chi.Router) {
			r.Get("/", s.handleGetConfig)
			r.Get("/audit", s.handleConfigAudit)
			r.Post("/blinds", s.handleAddBlind)

			r.Route("/blinds/{blind_id}", func(r chi.Router) {
				r.Put("/", s.handleUpdateBlind)
				r.Delete("/", s.handleRemoveBlind)
				r.Post("/enable", s.handleEnableBlind)
				r.Post("/disable", s.handleDisableBlind)
			})
		})
	})

	// System
	r.Get("/status", s.handleSystemStatus)
	r.Get("/mqtt/info", s.handleMQTTInfo)
	r.Get("/health", s.handleHealth)
	r.Get("/hello-world", s.handleHealth)
	r.Get("/ping", s.handlePing)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	if s.collectors != nil && s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Method(http.MethodGet, path, s.collectors.Handler())
	}

	return r
}

// pathParam returns the decoded value of a chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
