package webos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

var topics = mqtt.Topics{Protocol: Protocol}

type tvDialer struct {
	tv *fakeTV
}

func (d tvDialer) Dial(context.Context, string, string) (transport.Client, error) {
	return d.tv, nil
}

type noKeys struct{}

func (noKeys) GetKey(context.Context, identity.MAC) (string, bool, error) { return "", false, nil }
func (noKeys) PutKey(context.Context, identity.MAC, string) error         { return nil }

type bridgeFixture struct {
	mqtt    *MockMQTTClient
	tv      *fakeTV
	waker   *fakeWaker
	history *recordingHistory
	bridge  *Bridge
	manager *session.Manager
	known   *identity.KnownSet
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	f := &bridgeFixture{
		mqtt:    NewMockMQTTClient(),
		tv:      newFakeTV(),
		waker:   &fakeWaker{},
		history: &recordingHistory{},
		known:   identity.NewKnownSet(),
	}
	b, err := NewBridge(BridgeOptions{
		BridgeID:       "tvbridge-test",
		Version:        "test",
		PollInterval:   time.Hour,
		HealthInterval: time.Hour,
		MQTTClient:     f.mqtt,
		Waker:          f.waker,
		History:        f.history,
	})
	require.NoError(t, err)
	f.bridge = b

	m, err := session.NewManager(session.Options{
		Known:    f.known,
		Keys:     noKeys{},
		Dialer:   tvDialer{tv: f.tv},
		Attacher: b,
	})
	require.NoError(t, err)
	f.manager = m

	require.NoError(t, b.Start(context.Background(), m))
	t.Cleanup(func() {
		m.Close()
		b.Stop()
	})
	return f
}

func (f *bridgeFixture) connect(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.manager.Connect(context.Background(), livingRoom)
	require.NoError(t, err)
	f.mqtt.ClearPublished()
	f.tv.clearSent()
	return s
}

func (f *bridgeFixture) command(t *testing.T, cmd CommandMessage) {
	t.Helper()
	if cmd.DeviceID == "" {
		cmd.DeviceID = livingRoom.DeviceID()
	}
	err := f.mqtt.SimulateMessage(topics.AllCommands(), topics.Command(cmd.DeviceID), mustJSON(cmd))
	require.NoError(t, err)
}

// acks waits for n acks for deviceID.
func (f *bridgeFixture) acks(t *testing.T, n int) []AckMessage {
	t.Helper()
	topic := topics.Ack(livingRoom.DeviceID())
	require.Eventually(t, func() bool { return len(f.mqtt.PublishedOn(topic)) >= n }, time.Second, 5*time.Millisecond)

	var out []AckMessage
	for _, p := range f.mqtt.PublishedOn(topic) {
		var ack AckMessage
		require.NoError(t, json.Unmarshal(p.Payload, &ack))
		out = append(out, ack)
	}
	return out
}

func TestNewBridge_RequiresMQTT(t *testing.T) {
	_, err := NewBridge(BridgeOptions{})
	assert.Error(t, err)
}

func TestAttach_RegistersAndPublishesState(t *testing.T) {
	f := newBridgeFixture(t)

	_, err := f.manager.Connect(context.Background(), livingRoom)
	require.NoError(t, err)

	id := livingRoom.DeviceID()
	reg := f.mqtt.PublishedOn(topics.Device(id))
	require.Len(t, reg, 1)
	assert.True(t, reg[0].Retained)

	var dev DeviceMessage
	require.NoError(t, json.Unmarshal(reg[0].Payload, &dev))
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", dev.MAC)
	assert.Equal(t, "Living Room", dev.Name)
	assert.Len(t, dev.Properties, 4)
	assert.Len(t, dev.Actions, 12)
	assert.Equal(t, []string{"Live TV", "Netflix", "YouTube"}, dev.Actions[0].Enum)

	states := f.mqtt.PublishedOn(topics.State(id))
	require.Len(t, states, 1)
	var state StateMessage
	require.NoError(t, json.Unmarshal(states[0].Payload, &state))
	assert.Equal(t, map[string]any{"on": true, "volume": 10.0, "mute": false, "activeApp": "Netflix"}, state.State)
	assert.Empty(t, state.Changed)
}

func TestAttach_InitFailureRegistersNothing(t *testing.T) {
	f := newBridgeFixture(t)
	f.tv.fail(uriGetVolume, transport.ErrRequestFailed)

	_, err := f.manager.Connect(context.Background(), livingRoom)
	require.ErrorIs(t, err, session.ErrInitFailed)

	assert.Empty(t, f.mqtt.PublishedOn(topics.Device(livingRoom.DeviceID())))
	assert.Equal(t, 0, f.known.Len())
}

func TestDetach_Unregisters(t *testing.T) {
	f := newBridgeFixture(t)
	s := f.connect(t)

	f.manager.Disconnect(s)

	id := livingRoom.DeviceID()
	for _, topic := range []string{topics.Device(id), topics.State(id)} {
		pubs := f.mqtt.PublishedOn(topic)
		require.Len(t, pubs, 1, topic)
		assert.Empty(t, pubs[0].Payload)
		assert.True(t, pubs[0].Retained)
	}
	_, ok := f.bridge.device(id)
	assert.False(t, ok)
}

func TestSetPropertyCommand(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.command(t, CommandMessage{
		ID:         "cmd-1",
		Command:    CommandSetProperty,
		Parameters: map[string]any{"name": "volume", "value": 20},
	})

	acks := f.acks(t, 1)
	assert.Equal(t, AckCompleted, acks[0].Status)
	assert.Equal(t, "cmd-1", acks[0].CommandID)
	assert.Equal(t, "volume", acks[0].Target)

	states := f.mqtt.PublishedOn(topics.State(livingRoom.DeviceID()))
	require.Len(t, states, 1)
	var state StateMessage
	require.NoError(t, json.Unmarshal(states[0].Payload, &state))
	assert.Equal(t, []string{"volume"}, state.Changed)
	assert.Equal(t, 20.0, state.State["volume"])

	assert.Equal(t, []historyPoint{{DeviceID: livingRoom.DeviceID(), Property: "volume", Value: 20}}, f.history.list())
}

func TestSetPropertyCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		params   map[string]any
		failMute bool
		wantCode string
	}{
		{"read-only", "", map[string]any{"name": "activeApp", "value": "YouTube"}, false, ErrCodeReadOnly},
		{"bad value", "", map[string]any{"name": "volume", "value": "max"}, false, ErrCodeInvalidParameters},
		{"missing name", "", map[string]any{"value": 3}, false, ErrCodeInvalidParameters},
		{"unknown device", "webos-001122334455", map[string]any{"name": "mute", "value": true}, false, ErrCodeNotFound},
		{"device refuses", "", map[string]any{"name": "mute", "value": true}, true, ErrCodeProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBridgeFixture(t)
			f.connect(t)
			if tt.failMute {
				f.tv.fail(uriSetMute, transport.ErrRequestFailed)
			}

			deviceID := tt.deviceID
			if deviceID == "" {
				deviceID = livingRoom.DeviceID()
			}
			cmd := CommandMessage{ID: "c", DeviceID: deviceID, Command: CommandSetProperty, Parameters: tt.params}
			require.NoError(t, f.mqtt.SimulateMessage(topics.AllCommands(), topics.Command(deviceID), mustJSON(cmd)))

			topic := topics.Ack(deviceID)
			require.Eventually(t, func() bool { return len(f.mqtt.PublishedOn(topic)) == 1 }, time.Second, 5*time.Millisecond)
			var ack AckMessage
			require.NoError(t, json.Unmarshal(f.mqtt.PublishedOn(topic)[0].Payload, &ack))
			assert.Equal(t, AckFailed, ack.Status)
			require.NotNil(t, ack.Error)
			assert.Equal(t, tt.wantCode, ack.Error.Code)
			assert.Empty(t, f.mqtt.PublishedOn(topics.State(livingRoom.DeviceID())))
		})
	}
}

func TestInvokeActionCommand(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.command(t, CommandMessage{
		ID:         "cmd-2",
		Command:    CommandInvokeAction,
		Parameters: map[string]any{"name": "launchApp", "input": "YouTube"},
	})

	acks := f.acks(t, 2)
	assert.Equal(t, AckAccepted, acks[0].Status)
	assert.Equal(t, AckCompleted, acks[1].Status)
	assert.Equal(t, []string{uriLaunch}, f.tv.sentURIs())
}

func TestInvokeActionCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]any
		wantCode string
		started  bool
	}{
		{"unknown app", map[string]any{"name": "launchApp", "input": "NonexistentApp"}, ErrCodeNotFound, true},
		{"unknown key", map[string]any{"name": "pressKey", "input": "TURBO"}, ErrCodeInvalidParameters, false},
		{"unknown action", map[string]any{"name": "teleport"}, ErrCodeInvalidCommand, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBridgeFixture(t)
			f.connect(t)

			f.command(t, CommandMessage{ID: "c", Command: CommandInvokeAction, Parameters: tt.params})

			want := 1
			if tt.started {
				want = 2
			}
			acks := f.acks(t, want)
			last := acks[len(acks)-1]
			assert.Equal(t, AckFailed, last.Status)
			require.NotNil(t, last.Error)
			assert.Equal(t, tt.wantCode, last.Error.Code)
			assert.Empty(t, f.tv.sent(), "no protocol command is issued")
		})
	}
}

func TestCommandWithoutIDGetsOne(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.command(t, CommandMessage{
		Command:    CommandSetProperty,
		Parameters: map[string]any{"name": "mute", "value": true},
	})

	acks := f.acks(t, 1)
	assert.Equal(t, AckCompleted, acks[0].Status)
	_, err := uuid.Parse(acks[0].CommandID)
	assert.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.command(t, CommandMessage{ID: "c", Command: "explode"})

	acks := f.acks(t, 1)
	require.NotNil(t, acks[0].Error)
	assert.Equal(t, ErrCodeInvalidCommand, acks[0].Error.Code)
}

func TestRemoveAndReaddCommands(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.command(t, CommandMessage{ID: "rm", Command: CommandRemoveDevice})
	acks := f.acks(t, 1)
	assert.Equal(t, AckCompleted, acks[0].Status)
	assert.True(t, f.known.IsIgnored(livingRoom.MAC))
	_, ok := f.manager.Lookup(livingRoom.MAC)
	assert.False(t, ok)
	assert.Empty(t, f.mqtt.PublishedOn(topics.Device(livingRoom.DeviceID()))[0].Payload)

	f.command(t, CommandMessage{ID: "add", Command: CommandReaddDevice})
	f.acks(t, 2)
	assert.False(t, f.known.IsIgnored(livingRoom.MAC))
}

func TestReadStateRequest(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	tests := []struct {
		name     string
		deviceID string
		success  bool
	}{
		{"one device", livingRoom.DeviceID(), true},
		{"all devices", "", true},
		{"unknown device", "webos-001122334455", false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqID := fmt.Sprintf("req-%d", i)
			req := RequestMessage{RequestID: reqID, Action: RequestReadState, DeviceID: tt.deviceID}
			require.NoError(t, f.mqtt.SimulateMessage(topics.AllRequests(), topics.Request(reqID), mustJSON(req)))

			pubs := f.mqtt.PublishedOn(topics.Response(reqID))
			require.Len(t, pubs, 1)
			var resp ResponseMessage
			require.NoError(t, json.Unmarshal(pubs[0].Payload, &resp))
			assert.Equal(t, tt.success, resp.Success)
			if tt.success {
				state, ok := resp.Data[livingRoom.DeviceID()].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "Netflix", state["activeApp"])
			}
		})
	}
	assert.Empty(t, f.tv.sent(), "read_state answers from the cache")
}

func TestHandleMQTTMessage_BadInput(t *testing.T) {
	f := newBridgeFixture(t)

	assert.Error(t, f.bridge.handleMQTTMessage("graylogic/command", nil))
	assert.Error(t, f.bridge.handleMQTTMessage(topics.Command("x"), []byte("{not json")))
	assert.Error(t, f.bridge.handleMQTTMessage("graylogic/config/webos/x", []byte("{}")))
}

func TestConnectionLost_PublishesOff(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.tv.Close()

	require.Eventually(t, func() bool {
		return len(f.mqtt.PublishedOn(topics.State(livingRoom.DeviceID()))) == 1
	}, time.Second, 5*time.Millisecond)
	var state StateMessage
	require.NoError(t, json.Unmarshal(f.mqtt.PublishedOn(topics.State(livingRoom.DeviceID()))[0].Payload, &state))
	assert.Equal(t, []string{"on"}, state.Changed)
	assert.Equal(t, false, state.State["on"])
}

func TestLateEventsFromSupersededSessionAreIgnored(t *testing.T) {
	f := newBridgeFixture(t)
	old := f.connect(t)

	// A second manager attaches a fresh session for the same TV.
	other, err := session.NewManager(session.Options{
		Known:    identity.NewKnownSet(),
		Keys:     noKeys{},
		Dialer:   tvDialer{tv: newFakeTV()},
		Attacher: f.bridge,
	})
	require.NoError(t, err)
	t.Cleanup(other.Close)
	current, err := other.Connect(context.Background(), livingRoom)
	require.NoError(t, err)
	f.mqtt.ClearPublished()

	f.bridge.ConnectionLost(old)
	f.bridge.Detach(old)

	dev, ok := f.bridge.device(livingRoom.DeviceID())
	require.True(t, ok)
	assert.True(t, dev.ownedBy(current))
	on, err := dev.Value(PropertyOn)
	require.NoError(t, err)
	assert.Equal(t, true, on)
	assert.Empty(t, f.mqtt.GetPublished())
}

func TestRepublish(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	f.bridge.Republish()

	assert.Len(t, f.mqtt.PublishedOn(topics.Device(livingRoom.DeviceID())), 1)
	assert.Len(t, f.mqtt.PublishedOn(topics.State(livingRoom.DeviceID())), 1)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrReadOnly, ErrCodeReadOnly},
		{fmt.Errorf("wrap: %w", ErrUnknownAction), ErrCodeInvalidCommand},
		{ErrUnknownProperty, ErrCodeInvalidCommand},
		{ErrInvalidInput, ErrCodeInvalidParameters},
		{ErrInvalidValue, ErrCodeInvalidParameters},
		{ErrAppNotFound, ErrCodeNotFound},
		{ErrDeviceNotFound, ErrCodeNotFound},
		{ErrNotConnected, ErrCodeDeviceUnreachable},
		{transport.ErrClosed, ErrCodeDeviceUnreachable},
		{context.DeadlineExceeded, ErrCodeDeviceUnreachable},
		{transport.ErrRequestFailed, ErrCodeProtocolError},
		{errors.New("other"), ErrCodeProtocolError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	f := newBridgeFixture(t)
	f.connect(t)

	known, connected := f.bridge.stats()
	assert.Equal(t, 1, known)
	assert.Equal(t, 1, connected)
}
