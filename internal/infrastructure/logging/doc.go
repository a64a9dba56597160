// Package logging provides structured logging for the TV bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level policy.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.With("component", "discovery").Warn("mac lookup failed", "address", addr)
//
// Never log pairing keys, tokens or passwords.
package logging
