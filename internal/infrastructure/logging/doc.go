// Package logging provides structured logging for Tabi Core.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production, text output for development
//   - service and version attributes on every entry
//   - level filtering (debug, info, warn, error)
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("dispatching", "target", "room:bedroom")
//
// Never log the MQTT password, InfluxDB token or Redis password.
package logging
