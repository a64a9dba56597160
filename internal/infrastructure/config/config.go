package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the TV bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains the bridge identity and its periodic timers.
type BridgeConfig struct {
	ID string `yaml:"id"`

	// ScanInterval is the discovery cycle period. Default: 30s
	ScanInterval time.Duration `yaml:"scan_interval"`

	// PollInterval is the per-session poll-and-diff period. Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// HealthInterval is how often the bridge publishes its health. Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// ProbeTimeout bounds a single liveness ping. Default: 2s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// DiscoveryConfig controls how TVs are found on the network.
type DiscoveryConfig struct {
	// Service is the mDNS service type TVs announce.
	Service string `yaml:"service"`
	Domain  string `yaml:"domain"`

	// Interface restricts browsing to one network interface. Empty means all.
	Interface string `yaml:"interface"`

	// BrowseTimeout bounds one announcement query.
	BrowseTimeout time.Duration `yaml:"browse_timeout"`

	// NameFilter is matched case-insensitively against announced instance names.
	NameFilter string `yaml:"name_filter"`

	// Devices are statically configured TV addresses checked every cycle.
	Devices []StaticDevice `yaml:"devices"`
}

// StaticDevice is one configured TV address.
type StaticDevice struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
}

// TransportConfig contains control-connection settings.
type TransportConfig struct {
	Port           int           `yaml:"port"`
	Secure         bool          `yaml:"secure"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PairingTimeout time.Duration `yaml:"pairing_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// String returns a string representation with the password redacted.
func (a MQTTAuthConfig) String() string {
	pw := ""
	if a.Password != "" {
		pw = "[REDACTED]"
	}
	return fmt.Sprintf("{Username:%s Password:%s}", a.Username, pw)
}

// MarshalJSON redacts the password so configs can be logged safely.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type redacted struct {
		Username string `json:"username"`
		Password string `json:"password,omitempty"`
	}
	r := redacted{Username: a.Username}
	if a.Password != "" {
		r.Password = "[REDACTED]"
	}
	return json.Marshal(r)
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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

// String returns a string representation with the token redacted.
func (c InfluxDBConfig) String() string {
	token := ""
	if c.Token != "" {
		token = "[REDACTED]"
	}
	return fmt.Sprintf("{Enabled:%t URL:%s Token:%s Org:%s Bucket:%s}", c.Enabled, c.URL, token, c.Org, c.Bucket)
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: TVBRIDGE_SECTION_KEY
// For example: TVBRIDGE_DATABASE_PATH, TVBRIDGE_MQTT_HOST
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

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// A missing .env is the normal case in production.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "tvbridge-01",
			ScanInterval:   30 * time.Second,
			PollInterval:   5 * time.Second,
			HealthInterval: 30 * time.Second,
			ProbeTimeout:   2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Service:       "_airplay._tcp",
			Domain:        "local.",
			BrowseTimeout: 5 * time.Second,
			NameFilter:    "lg",
		},
		Transport: TransportConfig{
			Port:           3000,
			ConnectTimeout: 10 * time.Second,
			PairingTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/tvbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tvbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "tvbridge",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TVBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TVBRIDGE_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Discovery
	if v := os.Getenv("TVBRIDGE_DISCOVERY_INTERFACE"); v != "" {
		cfg.Discovery.Interface = v
	}
	if v := os.Getenv("TVBRIDGE_DISCOVERY_DEVICES"); v != "" {
		cfg.Discovery.Devices = cfg.Discovery.Devices[:0]
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.Discovery.Devices = append(cfg.Discovery.Devices, StaticDevice{Address: addr})
			}
		}
	}

	// Transport
	if v := os.Getenv("TVBRIDGE_TRANSPORT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Transport.Port = port
		}
	}

	// Database
	if v := os.Getenv("TVBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TVBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TVBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TVBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TVBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TVBRIDGE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.ScanInterval <= 0 {
		errs = append(errs, "bridge.scan_interval must be positive")
	}
	if c.Bridge.PollInterval <= 0 {
		errs = append(errs, "bridge.poll_interval must be positive")
	}

	if c.Discovery.Service == "" {
		errs = append(errs, "discovery.service is required")
	}
	for i, d := range c.Discovery.Devices {
		if ip := net.ParseIP(d.Address); ip == nil || ip.To4() == nil {
			errs = append(errs, fmt.Sprintf("discovery.devices[%d].address %q is not an IPv4 address", i, d.Address))
		}
	}

	if c.Transport.Port < 1 || c.Transport.Port > 65535 {
		errs = append(errs, "transport.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// StaticAddresses returns the configured TV addresses.
func (c *Config) StaticAddresses() []string {
	addrs := make([]string, 0, len(c.Discovery.Devices))
	for _, d := range c.Discovery.Devices {
		addrs = append(addrs, d.Address)
	}
	return addrs
}
