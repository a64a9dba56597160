// Gray Logic TV Bridge
//
// This is the main entry point for the webOS TV bridge. It finds LG
// webOS televisions on the local network, keeps one authenticated
// control session per TV and exposes each TV to Gray Logic Core as a
// device over MQTT.
//
// For the MQTT contract, see: internal/bridges/webos/doc.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-tvbridge/migrations"

	"github.com/nerrad567/gray-logic-tvbridge/internal/bridges/webos"
	"github.com/nerrad567/gray-logic-tvbridge/internal/discovery"
	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tvbridge/internal/network"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport/wsrpc"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/tvbridge.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic TV Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "bridge_id", cfg.Bridge.ID)

	// Identity store
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	store := identity.NewSQLiteStore(db.DB)
	log.Info("identity store ready", "path", cfg.Database.Path)

	// MQTT, with presence as Last Will
	topics := mqtt.Topics{Protocol: webos.Protocol}
	will, err := webos.PresenceWill(topics, cfg.Bridge.ID, version)
	if err != nil {
		return fmt.Errorf("building presence messages: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Property history (optional)
	var history webos.HistoryWriter
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	known := identity.NewKnownSet()

	bridge, err := webos.NewBridge(webos.BridgeOptions{
		BridgeID:       cfg.Bridge.ID,
		Version:        version,
		PollInterval:   cfg.Bridge.PollInterval,
		HealthInterval: cfg.Bridge.HealthInterval,
		MQTTClient:     mqttClient,
		Waker:          network.NewWakeSender(""),
		History:        history,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	manager, err := session.NewManager(session.Options{
		Known: known,
		Keys:  store,
		Dialer: &wsrpc.Dialer{
			Port:           cfg.Transport.Port,
			Secure:         cfg.Transport.Secure,
			ConnectTimeout: cfg.Transport.ConnectTimeout,
			PairingTimeout: cfg.Transport.PairingTimeout,
		},
		Attacher: bridge,
		OnError: func(id identity.DeviceIdentity, err error) {
			log.Error("session error", "device_id", id.DeviceID(), "address", id.Address, "error", err)
		},
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	if startErr := bridge.Start(ctx, manager); startErr != nil {
		manager.Close()
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	// Retained registrations are re-sent whenever the broker link returns.
	mqttClient.SetOnConnect(bridge.Republish)

	resolver, err := discovery.NewResolver(discovery.Options{
		Config: discovery.Config{
			Interval:      cfg.Bridge.ScanInterval,
			BrowseTimeout: cfg.Discovery.BrowseTimeout,
			NameFilter:    cfg.Discovery.NameFilter,
			Static:        staticCandidates(cfg),
		},
		Known:  known,
		MACs:   network.NewARPTable(cfg.Discovery.Interface),
		Prober: network.NewICMPProber(cfg.Bridge.ProbeTimeout),
		Scanner: network.NewMDNSScanner(network.MDNSConfig{
			Service:   cfg.Discovery.Service,
			Domain:    cfg.Discovery.Domain,
			Interface: cfg.Discovery.Interface,
		}),
		Sessions: manager,
		Recorder: store,
		Logger:   log,
	})
	if err != nil {
		manager.Close()
		bridge.Stop()
		return fmt.Errorf("creating resolver: %w", err)
	}

	log.Info("initialisation complete, discovering TVs",
		"static_devices", cfg.StaticAddresses(),
		"service", cfg.Discovery.Service,
	)

	// Run blocks until the shutdown signal.
	resolver.Run(ctx)

	log.Info("shutdown signal received, cleaning up")
	manager.Close()
	bridge.Stop()

	// Deferred Close() calls then run in reverse order:
	// 1. InfluxDB (if enabled)
	// 2. MQTT
	// 3. Database

	log.Info("Gray Logic TV Bridge stopped")
	return nil
}

// healthCheck verifies the infrastructure connections before TVs are
// attached.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// staticCandidates converts configured addresses into discovery candidates.
func staticCandidates(cfg *config.Config) []discovery.Candidate {
	out := make([]discovery.Candidate, 0, len(cfg.Discovery.Devices))
	for _, d := range cfg.Discovery.Devices {
		out = append(out, discovery.Candidate{Address: d.Address, Name: d.Name, MAC: identity.Unknown})
	}
	return out
}

// getConfigPath returns the configuration file path.
// Uses TVBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TVBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
