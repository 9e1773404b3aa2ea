// Tabi Core - blinds control plane
//
// This is the main entry point for the Tabi backend. It loads the blind
// configuration, connects to the MQTT bus and serves the HTTP API that turns
// OPEN/CLOSE/STOP requests into bus publishes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/nerrad567/tabi-core/internal/api"
	"github.com/nerrad567/tabi-core/internal/audit"
	"github.com/nerrad567/tabi-core/internal/device"
	"github.com/nerrad567/tabi-core/internal/dispatch"
	"github.com/nerrad567/tabi-core/internal/history"
	"github.com/nerrad567/tabi-core/internal/infrastructure/broker"
	"github.com/nerrad567/tabi-core/internal/infrastructure/config"
	"github.com/nerrad567/tabi-core/internal/infrastructure/database"
	"github.com/nerrad567/tabi-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/tabi-core/internal/infrastructure/logging"
	"github.com/nerrad567/tabi-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tabi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tabi-core/internal/status"
	"github.com/nerrad567/tabi-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither --config nor TABI_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often old dispatch log rows are deleted.
	pruneInterval = time.Hour

	// startupProbeTimeout bounds each dependency check during startup.
	startupProbeTimeout = 5 * time.Second
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags reads the command line. The config path falls back to
// TABI_CONFIG and then configs/config.yaml.
func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("tabi", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown once ctx is cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	opts, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "tabi %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Tabi Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration, writing the defaults on first run
	cfg, created, err := config.LoadOrDefault(opts.configPath)
	switch {
	case errors.Is(err, config.ErrDefaultNotWritten) && cfg != nil:
		log.Warn("using default configuration that could not be saved", "path", opts.configPath, "error", err)
	case err != nil:
		return fmt.Errorf("loading config: %w", err)
	case created:
		log.Info("default configuration written", "path", opts.configPath)
	default:
		log.Info("configuration loaded", "path", opts.configPath)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the registry first so a bad blind list fails before any connection is made
	registry, err := device.NewRegistry(devicesFromConfig(cfg.Blinds))
	if err != nil {
		return fmt.Errorf("building device registry: %w", err)
	}
	registry.SetLogger(log.With("component", "registry"))
	log.Info("device registry initialised",
		"blinds", registry.Snapshot().Len(),
		"enabled", registry.Snapshot().EnabledCount(),
		"rooms", len(registry.Rooms()),
	)

	// Start the embedded broker (optional)
	if cfg.MQTT.Embedded.Enabled {
		b, startErr := startBroker(cfg, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("stopping embedded MQTT broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var publisher dispatch.Publisher = mqtt.NewPublisher(mqttClient, byte(cfg.MQTT.QoS)) //nolint:gosec // QoS validated to 0..2

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(log.With("component", "dispatch"))}
	var (
		lastCommands history.LastCommandSource
		historyRead  api.HistoryReader
		forgetter    api.LastCommandForgetter
		auditLog     api.AuditLog
		db           *database.DB
		influxClient *influxdb.Client
		collectors   *metrics.Collectors
	)

	// Prometheus collectors (optional)
	if cfg.Metrics.Enabled {
		collectors = metrics.New(mqttClient.IsConnected)
		publisher = collectors.InstrumentPublisher(publisher)
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(collectors))
		log.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	// Dispatch history and configuration audit in SQLite (optional)
	if cfg.History.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		store := history.NewSQLiteStore(db.DB)
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(store))
		lastCommands = store
		historyRead = store
		auditLog = audit.NewSQLiteRepository(db.DB)
		go store.RunPruner(ctx, pruneInterval, cfg.HistoryRetention(), log.With("component", "history"))
	} else {
		log.Info("dispatch history disabled")
	}

	// Last-command cache in Redis (optional)
	if cfg.History.Cache == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := rdb.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()

		pingCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
		pingErr := rdb.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			log.Warn("Redis unreachable, last-command cache disabled", "address", cfg.Redis.Address, "error", pingErr)
		} else {
			cache := history.NewRedisCache(rdb, cfg.Redis.KeyPrefix, cfg.RedisTTL())
			dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(cache))
			lastCommands = cache
			forgetter = cache
			log.Info("Redis last-command cache enabled", "address", cfg.Redis.Address)
		}
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, influxdb.WithErrorHandler(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		}))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	dispatchOpts = append(dispatchOpts, dispatch.WithEventHub(hub))
	dispatcher := dispatch.New(registry, publisher, dispatchOpts...)

	reporterOpts := []status.Option{
		status.WithVersion(version),
		status.WithLogger(log.With("component", "status")),
	}
	if lastCommands != nil {
		reporterOpts = append(reporterOpts, status.WithLastCommands(lastCommands))
	}
	reporter := status.NewReporter(registry, mqttClient, reporterOpts...)

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Metrics:    cfg.Metrics,
		MQTT:       cfg.MQTT,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Reporter:   reporter,
		Bus:        mqttClient,
		History:    historyRead,
		Store:      &configStore{path: opts.configPath},
		Forgetter:  forgetter,
		Audit:      auditLog,
		Collectors: collectors,
		Hub:        hub,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if influxClient != nil {
		influxClient.Flush()
	}

	log.Info("Tabi Core stopped")
	return nil
}

// getConfigPath returns the config path from TABI_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("TABI_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBroker starts the embedded MQTT broker. A blank broker host points
// the MQTT client at it.
func startBroker(cfg *config.Config, log *logging.Logger) (*broker.Broker, error) {
	b := broker.New(cfg.MQTT.Embedded, cfg.MQTT.Auth)
	b.SetLogger(log.With("component", "broker"), log.Logger)
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded MQTT broker: %w", err)
	}

	if cfg.MQTT.Broker.Host == "" {
		host, portStr, err := net.SplitHostPort(b.Addr())
		if err != nil {
			b.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("parsing embedded broker address: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			b.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("parsing embedded broker port: %w", err)
		}
		if host == "" || host == "::" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		cfg.MQTT.Broker.Host = host
		cfg.MQTT.Broker.Port = port
	}

	log.Info("embedded MQTT broker started", "address", b.Addr())
	return b, nil
}

// healthCheck probes every started dependency once.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
