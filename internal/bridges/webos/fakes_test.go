package webos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

var livingRoom = identity.DeviceIdentity{MAC: "aa:bb:cc:dd:ee:ff", Address: "192.0.2.5", Name: "Living Room"}

type sentRequest struct {
	URI     string
	Payload transport.Payload
}

// fakeTV is a scripted transport client.
type fakeTV struct {
	mu         sync.Mutex
	responses  map[string]transport.Payload
	failures   map[string]error
	requests   []sentRequest
	pointer    *fakePointer
	pointerErr error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeTV() *fakeTV {
	return &fakeTV{
		responses: map[string]transport.Payload{
			uriListLaunchPoints: {
				"returnValue": true,
				"launchPoints": []any{
					map[string]any{"id": "netflix", "title": "Netflix"},
					map[string]any{"id": "youtube.leanback.v4", "title": "YouTube"},
					map[string]any{"id": "com.webos.app.livetv", "title": "Live TV"},
				},
			},
			uriForegroundApp: {"returnValue": true, "appId": "netflix"},
			uriGetVolume:     {"returnValue": true, "volume": 10.0, "muted": false},
		},
		failures: make(map[string]error),
		pointer:  &fakePointer{},
		done:     make(chan struct{}),
	}
}

func (tv *fakeTV) Request(_ context.Context, uri string, payload transport.Payload) (transport.Payload, error) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.requests = append(tv.requests, sentRequest{URI: uri, Payload: payload})
	if err, ok := tv.failures[uri]; ok {
		return nil, err
	}
	if resp, ok := tv.responses[uri]; ok {
		return resp, nil
	}
	return transport.Payload{"returnValue": true}, nil
}

func (tv *fakeTV) PointerSocket(context.Context) (transport.PointerSocket, error) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.requests = append(tv.requests, sentRequest{URI: "pointer-socket"})
	if tv.pointerErr != nil {
		return nil, tv.pointerErr
	}
	return tv.pointer, nil
}

func (tv *fakeTV) IssuedKeys() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}

func (tv *fakeTV) Done() <-chan struct{} { return tv.done }

func (tv *fakeTV) Close() error {
	tv.doneOnce.Do(func() { close(tv.done) })
	return nil
}

func (tv *fakeTV) respond(uri string, resp transport.Payload) {
	tv.mu.Lock()
	tv.responses[uri] = resp
	tv.mu.Unlock()
}

func (tv *fakeTV) fail(uri string, err error) {
	tv.mu.Lock()
	tv.failures[uri] = err
	tv.mu.Unlock()
}

func (tv *fakeTV) sent() []sentRequest {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]sentRequest(nil), tv.requests...)
}

func (tv *fakeTV) sentURIs() []string {
	var out []string
	for _, r := range tv.sent() {
		out = append(out, r.URI)
	}
	return out
}

func (tv *fakeTV) clearSent() {
	tv.mu.Lock()
	tv.requests = nil
	tv.mu.Unlock()
}

type fakePointer struct {
	mu     sync.Mutex
	events []string
	closed int
}

func (p *fakePointer) Button(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "button:"+name)
	return nil
}

func (p *fakePointer) Click() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "click")
	return nil
}

func (p *fakePointer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// fakeConn stands in for *session.Session.
type fakeConn struct {
	mu     sync.Mutex
	client transport.Client
	state  session.State
}

func (c *fakeConn) Client() transport.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *fakeConn) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) setState(s session.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type fakeWaker struct {
	mu    sync.Mutex
	woken []identity.MAC
	err   error
}

func (w *fakeWaker) SendWake(mac identity.MAC) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.woken = append(w.woken, mac)
	return nil
}

// changeRecorder collects notifications.
type changeRecorder struct {
	mu      sync.Mutex
	changes []PropertyChange
}

func (r *changeRecorder) record(_ *Device, c PropertyChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) list() []PropertyChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PropertyChange(nil), r.changes...)
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	handlers  map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedOn returns the payloads published on topic, oldest first.
func (m *MockMQTTClient) PublishedOn(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// SimulateMessage delivers payload to the handler subscribed with pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return handler(topic, payload)
}

// logRecorder keeps messages by level.
type logRecorder struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func newLogRecorder() *logRecorder {
	return &logRecorder{msgs: make(map[string][]string)}
}

func (l *logRecorder) add(level, msg string) {
	l.mu.Lock()
	l.msgs[level] = append(l.msgs[level], msg)
	l.mu.Unlock()
}

func (l *logRecorder) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *logRecorder) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *logRecorder) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *logRecorder) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *logRecorder) at(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs[level]...)
}

type historyPoint struct {
	DeviceID string
	Property string
	Value    any
}

type recordingHistory struct {
	mu     sync.Mutex
	points []historyPoint
}

func (h *recordingHistory) WriteProperty(deviceID, property string, value any, _ time.Time) {
	h.mu.Lock()
	h.points = append(h.points, historyPoint{DeviceID: deviceID, Property: property, Value: value})
	h.mu.Unlock()
}

func (h *recordingHistory) list() []historyPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyPoint(nil), h.points...)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
