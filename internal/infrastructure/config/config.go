package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File permission constants.
const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// Config is the root configuration structure for Tabi Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Redis     RedisConfig     `yaml:"redis"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Blinds    []BlindConfig   `yaml:"blinds"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig     `yaml:"broker"`
	Auth      MQTTAuthConfig       `yaml:"auth"`
	QoS       int                  `yaml:"qos"`
	KeepAlive int                  `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig  `yaml:"reconnect"`
	Embedded  EmbeddedBrokerConfig `yaml:"embedded"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// EmbeddedBrokerConfig controls the in-process MQTT broker.
// When enabled, the broker listens on Address and the MQTT client
// connects to it instead of an external Mosquitto instance.
type EmbeddedBrokerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig controls dispatch history recording.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Cache selects an additional last-command cache: "none" or "redis".
	Cache string `yaml:"cache"`
	// RetentionDays is how long dispatch log rows are kept. 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// RedisConfig contains Redis connection settings for the last-command cache.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TTLHours  int    `yaml:"ttl_hours"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BlindConfig is one configured blind as it appears in the YAML file.
type BlindConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Room         string `yaml:"room"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	DeviceType   string `yaml:"device_type"`
	Enabled      bool   `yaml:"enabled"`
	StatusTopic  string `yaml:"status_topic,omitempty"`
	BatteryTopic string `yaml:"battery_topic,omitempty"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TABI_SECTION_KEY
// For example: TABI_MQTT_HOST, TABI_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// The default blind list must not survive into a file that declares its own.
	cfg.Blinds = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ErrDefaultNotWritten is returned alongside a usable default
// configuration when LoadOrDefault could not write it to disk.
var ErrDefaultNotWritten = errors.New("config: default configuration not written")

// LoadOrDefault loads the configuration at path, creating it first if it does not exist.
//
// A path that cannot be stat'ed (missing, or under an unreadable or
// non-directory parent) is replaced by the default configuration (three
// example blinds) written to path so operators have something to edit. If
// that write fails the defaults are still returned, together with an error
// matching ErrDefaultNotWritten. A file that exists but fails to read, parse
// or validate is returned as an error with a nil configuration.
//
// Returns:
//   - *Config: Loaded or default configuration
//   - bool: true when the default file was created
//   - error: If loading fails, or the default could not be written
func LoadOrDefault(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	}

	cfg := defaultConfig()
	saveErr := cfg.Save(path)

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validating config: %w", err)
	}
	if saveErr != nil {
		return cfg, false, fmt.Errorf("%w: %w", ErrDefaultNotWritten, saveErr)
	}
	return cfg, true, nil
}

// SaveBlinds replaces the blinds section of the file at path and leaves
// every other section as written. Environment overrides are not applied, so
// secrets supplied through the environment never reach the file.
func SaveBlinds(path string, blinds []BlindConfig) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.Blinds = blinds
	return cfg.Save(path)
}

// Save writes the configuration to path as YAML.
//
// The file is written to a temporary sibling first and renamed into place so
// a crash mid-write never leaves a truncated config behind.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tabi-backend",
			},
			QoS:       1,
			KeepAlive: 5,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Embedded: EmbeddedBrokerConfig{
				Address: ":1883",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/tabi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:       true,
			Cache:         "none",
			RetentionDays: 30,
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			KeyPrefix: "tabi:",
			TTLHours:  24 * 7,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Blinds: defaultBlinds(),
	}
}

// defaultBlinds returns the example blinds written to a fresh config file.
func defaultBlinds() []BlindConfig {
	blind := func(id, name, room, slug string) BlindConfig {
		return BlindConfig{
			ID:           id,
			Name:         name,
			Room:         room,
			MQTTTopic:    "home/blinds/" + slug + "/control",
			DeviceType:   "motorized_blind",
			Enabled:      true,
			StatusTopic:  "home/blinds/" + slug + "/status",
			BatteryTopic: "home/blinds/" + slug + "/battery",
		}
	}
	return []BlindConfig{
		blind("blind_001", "Bedroom Blind", "bedroom", "bedroom"),
		blind("blind_002", "Living Room Blind", "living_room", "living"),
		blind("blind_003", "Kitchen Blind", "kitchen", "kitchen"),
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TABI_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("TABI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TABI_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TABI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TABI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TABI_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TABI_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("TABI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Redis
	if v := os.Getenv("TABI_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("TABI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TABI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TABI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Blind definitions are only checked for shape here; identity and topic
// invariants are enforced by the device registry when it is built.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" && !c.MQTT.Embedded.Enabled {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}

	// History validation
	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}
	switch c.History.Cache {
	case "", "none":
	case "redis":
		if c.Redis.Address == "" {
			errs = append(errs, "redis.address is required when history.cache is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("history.cache must be none or redis, got %q", c.History.Cache))
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// Metrics validation
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	// Blinds validation
	for i, b := range c.Blinds {
		if b.ID == "" {
			errs = append(errs, fmt.Sprintf("blinds[%d].id is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// RedisTTL returns the last-command cache expiry.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}

// HistoryRetention returns how long dispatch log rows are kept, or zero
// when they are kept forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}
