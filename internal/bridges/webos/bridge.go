package webos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 4

	defaultPollInterval   = 5 * time.Second
	defaultCommandTimeout = 10 * time.Second
)

// Bridge is the host-framework boundary over MQTT. It implements
// session.Attacher: every attached session becomes a published Device,
// and host commands are dispatched to it.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	topics   mqtt.Topics
	waker    Waker
	history  HistoryWriter
	health   *HealthReporter
	logger   Logger
	poll     time.Duration
	cmdLimit time.Duration

	sessions   SessionControl
	sessionsMu sync.RWMutex

	devices   map[string]*Device
	devicesMu sync.RWMutex

	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// SessionControl is the part of *session.Manager the bridge drives.
type SessionControl interface {
	Remove(mac identity.MAC)
	Readd(mac identity.MAC)
	Sessions() []*session.Session
}

// HistoryWriter records property changes. *influxdb.Client satisfies it.
type HistoryWriter interface {
	WriteProperty(deviceID, property string, value any, at time.Time)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	BridgeID string
	Version  string

	// PollInterval defaults to 5 seconds.
	PollInterval time.Duration

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// CommandTimeout bounds each host command. Default: 10 seconds.
	CommandTimeout time.Duration

	MQTTClient MQTTClient

	// Waker powers TVs on. Optional; without it on=true fails.
	Waker Waker

	// History is optional.
	History HistoryWriter

	Logger Logger
}

// NewBridge creates a bridge. Call Start once the session manager exists.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	cmdLimit := opts.CommandTimeout
	if cmdLimit <= 0 {
		cmdLimit = defaultCommandTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:      opts.MQTTClient,
		topics:    mqtt.Topics{Protocol: Protocol},
		waker:     opts.Waker,
		history:   opts.History,
		logger:    logger,
		poll:      poll,
		cmdLimit:  cmdLimit,
		devices:   make(map[string]*Device),
		ctx:       ctx,
		ctxCancel: cancel,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Topic:     b.topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Stats:     b.stats,
		Logger:    logger,
	})
	return b, nil
}

// Start subscribes to host commands and requests and begins health
// reporting.
func (b *Bridge) Start(ctx context.Context, sessions SessionControl) error {
	b.sessionsMu.Lock()
	b.sessions = sessions
	b.sessionsMu.Unlock()

	if err := b.mqtt.Subscribe(b.topics.AllCommands(), 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllRequests(), 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.health.Start(ctx)
	b.logger.Info("bridge started", "commands", b.topics.AllCommands())
	return nil
}

// Stop waits for in-flight commands and publishes a final health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// Attach implements session.Attacher: initialise, register, publish the
// initial state and start polling.
func (b *Bridge) Attach(ctx context.Context, s *session.Session) error {
	dev := NewDevice(s.Identity(), s, b.waker, b.handleChange, b.logger)
	if err := dev.Initialize(ctx); err != nil {
		return err
	}

	if err := b.publishDevice(dev); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}

	b.devicesMu.Lock()
	b.devices[dev.ID()] = dev
	b.devicesMu.Unlock()

	b.publishState(dev, nil)
	dev.StartPolling(b.poll)

	b.logger.Info("device registered",
		"device_id", dev.ID(),
		"address", dev.Identity().Address,
		"apps", dev.Apps().Len())
	return nil
}

// Detach implements session.Attacher: stop polling and unregister.
func (b *Bridge) Detach(s *session.Session) {
	id := s.DeviceID()

	b.devicesMu.Lock()
	dev, ok := b.devices[id]
	if ok && !dev.ownedBy(s) {
		b.devicesMu.Unlock()
		b.logger.Debug("ignoring detach of superseded session", "device_id", id)
		return
	}
	delete(b.devices, id)
	b.devicesMu.Unlock()

	if ok {
		dev.Close()
	}
	b.unpublish(id)
	b.logger.Info("device unregistered", "device_id", id)
}

// ConnectionLost implements session.Attacher.
func (b *Bridge) ConnectionLost(s *session.Session) {
	// A late drop from a superseded session must not touch its successor.
	if dev, ok := b.device(s.DeviceID()); ok && dev.ownedBy(s) {
		dev.ConnectionLost()
	}
}

// Republish re-sends every registration and state snapshot, e.g. after the
// broker lost retained messages.
func (b *Bridge) Republish() {
	b.devicesMu.RLock()
	devices := make([]*Device, 0, len(b.devices))
	for _, dev := range b.devices {
		devices = append(devices, dev)
	}
	b.devicesMu.RUnlock()

	for _, dev := range devices {
		if err := b.publishDevice(dev); err != nil {
			b.logger.Warn("republish failed", "device_id", dev.ID(), "error", err)
			continue
		}
		b.publishState(dev, nil)
	}
}

// device returns the published device with the given id.
func (b *Bridge) device(id string) (*Device, bool) {
	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	dev, ok := b.devices[id]
	return dev, ok
}

func (b *Bridge) handleChange(dev *Device, change PropertyChange) {
	b.publishState(dev, []string{change.Name})
	if b.history != nil {
		b.history.WriteProperty(dev.ID(), change.Name, change.Value, time.Now().UTC())
	}
}

func (b *Bridge) publishDevice(dev *Device) error {
	id := dev.Identity()
	msg := DeviceMessage{
		DeviceID:   dev.ID(),
		Timestamp:  time.Now().UTC(),
		Name:       id.Name,
		MAC:        string(id.MAC),
		Address:    id.Address,
		Protocol:   Protocol,
		Properties: describeProperties(dev.Apps()),
		Actions:    describeActions(dev.Apps()),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.mqtt.Publish(b.topics.Device(dev.ID()), payload, 1, true)
}

// publishState publishes the full snapshot; changed names the properties
// that triggered it.
func (b *Bridge) publishState(dev *Device, changed []string) {
	msg := NewStateMessage(dev.ID(), dev.Identity().Address, dev.Snapshot())
	msg.Changed = changed
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal state", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(dev.ID()), payload, 1, true); err != nil {
		b.logger.Warn("failed to publish state", "device_id", dev.ID(), "error", err)
	}
}

func (b *Bridge) unpublish(id string) {
	for _, topic := range []string{b.topics.Device(id), b.topics.State(id)} {
		if err := b.mqtt.Publish(topic, []byte{}, 1, true); err != nil {
			b.logger.Warn("failed to clear retained topic", "topic", topic, "error", err)
		}
	}
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	switch parts[1] {
	case "command":
		return b.handleCommand(parts[len(parts)-1], payload)
	case "request":
		return b.handleRequest(parts[len(parts)-1], payload)
	default:
		return fmt.Errorf("unknown message type: %s", parts[1])
	}
}

// handleCommand validates synchronously and runs device work on its own
// goroutine so the MQTT client is never blocked by a slow TV.
func (b *Bridge) handleCommand(topicID string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = topicID
	}
	// Acks are correlated by id, so anonymous commands get one.
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	switch cmd.Command {
	case CommandRemoveDevice, CommandReaddDevice:
		b.executeMembership(cmd)
	case CommandSetProperty:
		b.executeSetProperty(cmd)
	case CommandInvokeAction:
		b.executeInvokeAction(cmd)
	default:
		b.publishAckError(cmd, "", fmt.Errorf("%w: unknown command %q", ErrUnknownAction, cmd.Command), ErrCodeInvalidCommand)
	}
	return nil
}

func (b *Bridge) executeMembership(cmd CommandMessage) {
	mac, err := identity.MACFromDeviceID(cmd.DeviceID)
	if err != nil {
		b.publishAckError(cmd, "", err, ErrCodeInvalidParameters)
		return
	}
	b.sessionsMu.RLock()
	sessions := b.sessions
	b.sessionsMu.RUnlock()
	if sessions == nil {
		b.publishAckError(cmd, "", errors.New("bridge not started"), ErrCodeNotConfigured)
		return
	}

	b.async(func() {
		if cmd.Command == CommandRemoveDevice {
			sessions.Remove(mac)
		} else {
			sessions.Readd(mac)
		}
		b.publishAck(cmd, AckCompleted, "")
	})
}

func (b *Bridge) executeSetProperty(cmd CommandMessage) {
	name, _ := cmd.Parameters["name"].(string)
	if name == "" {
		b.publishAckError(cmd, "", fmt.Errorf("%w: missing 'name' parameter", ErrInvalidValue), "")
		return
	}
	value, ok := cmd.Parameters["value"]
	if !ok {
		b.publishAckError(cmd, name, fmt.Errorf("%w: missing 'value' parameter", ErrInvalidValue), "")
		return
	}
	dev, ok := b.device(cmd.DeviceID)
	if !ok {
		b.publishAckError(cmd, name, fmt.Errorf("%w: %s", ErrDeviceNotFound, cmd.DeviceID), "")
		return
	}

	b.async(func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cmdLimit)
		defer cancel()
		if err := dev.SetValue(ctx, name, value); err != nil {
			b.logger.Warn("property write failed", "device_id", dev.ID(), "property", name, "error", err)
			b.publishAckError(cmd, name, err, "")
			return
		}
		b.publishAck(cmd, AckCompleted, name)
	})
}

func (b *Bridge) executeInvokeAction(cmd CommandMessage) {
	name, _ := cmd.Parameters["name"].(string)
	action, err := ParseAction(name, cmd.Parameters["input"])
	if err != nil {
		b.publishAckError(cmd, name, err, "")
		return
	}
	dev, ok := b.device(cmd.DeviceID)
	if !ok {
		b.publishAckError(cmd, name, fmt.Errorf("%w: %s", ErrDeviceNotFound, cmd.DeviceID), "")
		return
	}

	b.publishAck(cmd, AckAccepted, name)
	b.async(func() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cmdLimit)
		defer cancel()
		if err := dev.Invoke(ctx, action); err != nil {
			b.logger.Warn("action failed", "device_id", dev.ID(), "action", name, "error", err)
			b.publishAckError(cmd, name, err, "")
			return
		}
		b.publishAck(cmd, AckCompleted, name)
	})
}

func (b *Bridge) async(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func (b *Bridge) handleRequest(topicID string, payload []byte) error {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = topicID
	}

	resp := ResponseMessage{RequestID: req.RequestID, Timestamp: time.Now().UTC()}
	switch req.Action {
	case RequestReadState:
		data, err := b.readState(req.DeviceID)
		if err != nil {
			resp.Error = &AckError{Code: errorCode(err), Message: err.Error()}
		} else {
			resp.Success = true
			resp.Data = data
		}
	default:
		resp.Error = &AckError{Code: ErrCodeInvalidCommand, Message: fmt.Sprintf("unknown request action: %s", req.Action)}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return b.mqtt.Publish(b.topics.Response(req.RequestID), out, 1, false)
}

// readState returns cached snapshots keyed by device id.
func (b *Bridge) readState(deviceID string) (map[string]any, error) {
	if deviceID != "" {
		dev, ok := b.device(deviceID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return map[string]any{deviceID: dev.Snapshot()}, nil
	}

	b.devicesMu.RLock()
	defer b.devicesMu.RUnlock()
	data := make(map[string]any, len(b.devices))
	for id, dev := range b.devices {
		data[id] = dev.Snapshot()
	}
	return data, nil
}

func (b *Bridge) publishAck(cmd CommandMessage, status AckStatus, target string) {
	b.publish(b.topics.Ack(cmd.DeviceID), NewAckMessage(cmd, status, target))
}

// publishAckError publishes a failed ack. An empty code is derived from err.
func (b *Bridge) publishAckError(cmd CommandMessage, target string, err error, code string) {
	if code == "" {
		code = errorCode(err)
	}
	b.publish(b.topics.Ack(cmd.DeviceID), NewAckError(cmd, target, code, err.Error()))
}

func (b *Bridge) publish(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logger.Error("failed to publish", "topic", topic, "error", err)
	}
}

// errorCode maps an error to its ack code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrReadOnly):
		return ErrCodeReadOnly
	case errors.Is(err, ErrUnknownProperty), errors.Is(err, ErrUnknownAction):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidValue), errors.Is(err, ErrInvalidInput):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrAppNotFound), errors.Is(err, ErrDeviceNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrNotConnected), errors.Is(err, transport.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeProtocolError
	}
}

func (b *Bridge) stats() (known, connected int) {
	b.sessionsMu.RLock()
	sessions := b.sessions
	b.sessionsMu.RUnlock()
	if sessions == nil {
		return 0, 0
	}
	all := sessions.Sessions()
	for _, s := range all {
		if s.State() == session.Connected {
			connected++
		}
	}
	return len(all), connected
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
