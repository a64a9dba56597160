package mqtt

import "fmt"

// TopicPrefix is the root of every Gray Logic topic.
const TopicPrefix = "graylogic"

// Topics builds the flat bridge topic scheme
// graylogic/{category}/{protocol}/{device_or_request_id} for one protocol.
//
//	topics := mqtt.Topics{Protocol: "webos"}
//	topics.State("webos-aabbccddeeff")
//	// Returns: "graylogic/state/webos/webos-aabbccddeeff"
type Topics struct {
	Protocol string
}

// State is where property snapshots and changes are published.
func (t Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, t.Protocol, deviceID)
}

// Command is where the host sends property writes and action invocations.
func (t Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, t.Protocol, deviceID)
}

// Ack is where command outcomes are published.
func (t Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, t.Protocol, deviceID)
}

// Device carries the retained registration of one device. An empty
// retained payload on this topic means the device is gone.
func (t Topics) Device(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/%s", TopicPrefix, t.Protocol, deviceID)
}

// Request is where the host sends read requests.
func (t Topics) Request(requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, t.Protocol, requestID)
}

// Response answers a Request with the same id.
func (t Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, t.Protocol, requestID)
}

// Health is the retained bridge health and presence topic.
func (t Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, t.Protocol)
}

// AllCommands matches commands for every device of this protocol.
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, t.Protocol)
}

// AllRequests matches every request for this protocol.
func (t Topics) AllRequests() string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefix, t.Protocol)
}
