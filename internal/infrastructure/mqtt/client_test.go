package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/config"
)

// Broker-backed tests live behind the integration build tag; these cover
// everything that does not need a live broker.

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tvbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Protocol: "webos"}
	id := "webos-aabbccddeeff"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"State", topics.State(id), "graylogic/state/webos/webos-aabbccddeeff"},
		{"Command", topics.Command(id), "graylogic/command/webos/webos-aabbccddeeff"},
		{"Ack", topics.Ack(id), "graylogic/ack/webos/webos-aabbccddeeff"},
		{"Device", topics.Device(id), "graylogic/device/webos/webos-aabbccddeeff"},
		{"Request", topics.Request("req-1"), "graylogic/request/webos/req-1"},
		{"Response", topics.Response("req-1"), "graylogic/response/webos/req-1"},
		{"Health", topics.Health(), "graylogic/health/webos"},
		{"AllCommands", topics.AllCommands(), "graylogic/command/webos/+"},
		{"AllRequests", topics.AllRequests(), "graylogic/request/webos/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bridge", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "tvbridge-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "tvbridge-test")
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want bridge/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS should not be configured for plain tcp")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if !strings.HasPrefix(opts.Servers[0].String(), "ssl://") {
		t.Errorf("Servers[0] = %v, want ssl scheme", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig.MinVersion not set to TLS 1.2")
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "graylogic/test", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "graylogic/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "graylogic/test", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want %v", err, ErrInvalidTopic)
	}
	if err := c.Subscribe("graylogic/test", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v, want %v", err, ErrInvalidQoS)
	}
	if err := c.Subscribe("graylogic/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want %v", err, ErrSubscribeFailed)
	}
	if err := c.Subscribe("graylogic/test", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want %v", err, ErrNotConnected)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestWrapHandler(t *testing.T) {
	c := &Client{}
	logger := &recordingLogger{}
	c.SetLogger(logger)

	msg := fakeMessage{topic: "graylogic/command/webos/x", payload: []byte(`{}`)}

	var got string
	c.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)
	if got != msg.topic {
		t.Errorf("handler topic = %q, want %q", got, msg.topic)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)

	if len(logger.warns) != 1 {
		t.Errorf("warns = %d, want 1", len(logger.warns))
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %d, want 1 (recovered panic)", len(logger.errors))
	}
}
