// Package config handles loading, validating and saving Tabi Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Creating a default configuration file on first start
//   - Overriding with environment variables
//   - Validation of required fields
//   - Writing the blind list back after runtime edits
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, Redis password) should
//     be set via environment variables
//   - The config file is written with restricted permissions (0600)
//
// Usage:
//
//	cfg, created, err := config.LoadOrDefault("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(cfg.Blinds), created)
package config
