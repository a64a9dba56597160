// Package config handles loading and validating TV bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with a .env file and environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - Secrets are redacted when auth sections are printed or marshalled
//
// Usage:
//
//	cfg, err := config.Load("configs/tvbridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.ScanInterval)
package config
