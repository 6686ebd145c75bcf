// Package logging provides structured logging for boardd.
//
// It wraps log/slog with JSON or text output, level filtering, and
// service/version fields on every entry. Packages that log take a small
// Logger interface, which *Logger satisfies; each gets a child logger
// tagged with its component name.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	client, _ := daemon.New(daemon.Options{Logger: logger.Component("daemon"), ...})
//
// Never log the MQTT password or the InfluxDB token.
package logging
