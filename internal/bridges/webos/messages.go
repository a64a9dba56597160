package webos

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol is the topic segment and protocol field for this bridge.
const Protocol = "webos"

// Command names accepted on the command topic.
const (
	CommandSetProperty  = "set_property"
	CommandInvokeAction = "invoke_action"
	CommandRemoveDevice = "remove_device"
	CommandReaddDevice  = "readd_device"
)

// Request actions accepted on the request topic.
const (
	RequestReadState = "read_state"
)

// CommandMessage is sent from Core to the bridge.
// Topic: graylogic/command/webos/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acks.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID defaults to the last topic segment when empty.
	DeviceID string `json:"device_id"`

	// Command is one of the Command* constants.
	Command string `json:"command"`

	// Parameters by command:
	//   set_property:  {"name": "volume", "value": 12}
	//   invoke_action: {"name": "launchApp", "input": "Netflix"}
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "scene", ...).
	Source string `json:"source,omitempty"`
}

// UnmarshalJSON tolerates a missing or empty timestamp.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	// AckAccepted marks an action invocation as started.
	AckAccepted AckStatus = "accepted"

	// AckCompleted marks a command as finished without error.
	AckCompleted AckStatus = "completed"

	// AckFailed marks a command as finished with an error.
	AckFailed AckStatus = "failed"
)

// AckMessage reports a command outcome.
// Topic: graylogic/ack/webos/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	// Target is the property or action name, when there is one.
	Target string `json:"target,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeReadOnly          = "READ_ONLY"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// StateMessage carries property values: the full snapshot on
// registration and the changed property afterwards.
// Topic: graylogic/state/webos/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`

	// Changed lists the properties that triggered this message. Empty for
	// the snapshot sent on registration.
	Changed []string `json:"changed,omitempty"`
}

// DeviceMessage registers a device with the host. An empty retained
// payload on the same topic unregisters it.
// Topic: graylogic/device/webos/{device_id}
// QoS: 1, Retained: Yes
type DeviceMessage struct {
	DeviceID   string               `json:"device_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Name       string               `json:"name,omitempty"`
	MAC        string               `json:"mac"`
	Address    string               `json:"address"`
	Protocol   string               `json:"protocol"`
	Properties []PropertyDescriptor `json:"properties"`
	Actions    []ActionDescriptor   `json:"actions"`
}

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/webos/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is one of the Request* constants.
	Action string `json:"action"`

	// DeviceID limits read_state to one device. Empty means all.
	DeviceID string `json:"device_id,omitempty"`
}

// ResponseMessage answers a RequestMessage.
// Topic: graylogic/response/webos/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *AckError      `json:"error,omitempty"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/webos
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge           string       `json:"bridge"`
	Timestamp        time.Time    `json:"timestamp"`
	Status           HealthStatus `json:"status"`
	Version          string       `json:"version,omitempty"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	DevicesKnown     int          `json:"devices_known"`
	DevicesConnected int          `json:"devices_connected"`
	Reason           string       `json:"reason,omitempty"`
}

// NewAckMessage creates an ack without error details.
func NewAckMessage(cmd CommandMessage, status AckStatus, target string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Target:    target,
	}
}

// NewAckError creates a failed ack.
func NewAckError(cmd CommandMessage, target, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, target)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message.
func NewStateMessage(deviceID, address string, state map[string]any) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewLWTMessage is what the broker publishes if the bridge vanishes.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
