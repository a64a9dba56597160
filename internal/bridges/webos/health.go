package webos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes retained health status at a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	stats     func() (known, connected int)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// HealthPublisher is typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is where health is published.
	Topic string

	// Interval defaults to 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher

	// Stats reports the known and connected session counts. Optional.
	Stats func() (known, connected int)

	Logger Logger
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		topic:     cfg.Topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins periodic reporting until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while MQTT is down or while any known TV
// has no live connection.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.stats != nil {
		if known, connected := h.stats(); connected < known {
			return HealthDegraded, "some TVs disconnected"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.stats != nil {
		msg.DevicesKnown, msg.DevicesConnected = h.stats()
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

// PresenceWill builds the MQTT presence payloads for the bridge: starting
// on connect, offline as Last Will, stopping on graceful close.
func PresenceWill(topics mqtt.Topics, bridgeID, version string) (mqtt.Will, error) {
	now := time.Now().UTC()
	online, err := json.Marshal(HealthMessage{Bridge: bridgeID, Timestamp: now, Status: HealthStarting, Version: version})
	if err != nil {
		return mqtt.Will{}, err
	}
	offline, err := json.Marshal(NewLWTMessage(bridgeID))
	if err != nil {
		return mqtt.Will{}, err
	}
	shutdown, err := json.Marshal(HealthMessage{Bridge: bridgeID, Timestamp: now, Status: HealthStopping, Version: version})
	if err != nil {
		return mqtt.Will{}, err
	}
	return mqtt.Will{Topic: topics.Health(), Online: online, Offline: offline, Shutdown: shutdown}, nil
}
