package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tabi-core/internal/audit"
	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/dispatch"
	"github.com/nerrad567/tabi-core/internal/history"
	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
	"github.com/nerrad567/tabi-core/internal/infrastructure/logging"
	"github.com/nerrad567/tabi-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tabi-core/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Server lifecycle errors.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("api: server already started")

	// ErrNotStarted is returned by HealthCheck before Start.
	ErrNotStarted = errors.New("api: server not started")
)

// BusInfo describes the MQTT connection for /mqtt/info.
type BusInfo interface {
	Info() string
}

// HistoryReader serves GET /blinds/history.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// DeviceStore persists the device list after a configuration change.
type DeviceStore interface {
	SaveDevices(devices []device.Device) error
}

// LastCommandForgetter drops cached state for a removed device.
type LastCommandForgetter interface {
	Forget(ctx context.Context, deviceID string) error
}

// AuditLog records configuration changes and serves GET /blinds/config/audit.
type AuditLog interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Metrics    config.MetricsConfig
	MQTT       config.MQTTConfig // echoed by GET /blinds/config; the password is never exposed
	Logger     *logging.Logger
	Registry   *device.Registry
	Dispatcher *dispatch.Service
	Reporter   *status.Reporter
	Bus        BusInfo              // optional
	History    HistoryReader        // optional; /blinds/history answers 503 without it
	Store      DeviceStore          // optional; configuration changes stay in memory without it
	Forgetter  LastCommandForgetter // optional
	Audit      AuditLog             // optional; /blinds/config/audit answers 503 without it
	Collectors *metrics.Collectors  // optional; disables /metrics and request counting when nil
	Hub        *Hub                 // If set, the server uses this hub instead of creating its own
}

// Server is the HTTP API server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	metricsCfg config.MetricsConfig
	mqttCfg    config.MQTTConfig
	logger     *logging.Logger
	registry   *device.Registry
	dispatcher *dispatch.Service
	reporter   *status.Reporter
	bus        BusInfo
	history    HistoryReader
	store      DeviceStore
	forgetter  LastCommandForgetter
	audit      AuditLog
	collectors *metrics.Collectors
	hub        *Hub

	// saveMu serialises registry snapshots with the store write so the
	// last save always carries the latest registry.
	saveMu sync.Mutex

	mu     sync.Mutex
	server *http.Server
	addr   string
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("api: logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("api: device registry is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("api: dispatcher is required")
	}
	if deps.Reporter == nil {
		return nil, fmt.Errorf("api: status reporter is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		mqttCfg:    deps.MQTT,
		logger:     deps.Logger,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		reporter:   deps.Reporter,
		bus:        deps.Bus,
		history:    deps.History,
		store:      deps.Store,
		forgetter:  deps.Forgetter,
		audit:      deps.Audit,
		collectors: deps.Collectors,
		hub:        hub,
	}, nil
}

// Start binds the listener and begins serving in the background.
//
// A port of 0 picks a free port; Addr reports the bound address.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyStarted
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.addr = ln.Addr().String()

	s.logger.Info("API server starting", "address", s.addr)
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server)

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	// Stops the hub and disconnects WebSocket clients
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ErrNotStarted
	}
	return nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
