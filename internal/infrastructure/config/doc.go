// Package config handles loading and validating boardd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with BOARDD_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token, JWT secret) should be
// set via environment variables rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Daemon.PollRate)
package config
