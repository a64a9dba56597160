package wsrpc

import "github.com/nerrad567/gray-logic-tvbridge/internal/transport"

// Message types on the control socket.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeRequest    = "request"
	TypeResponse   = "response"
	TypeError      = "error"
)

// URIPointerSocket returns the path of the pointer input socket.
const URIPointerSocket = "ssap://com.webos.service.networkinput/getPointerInputSocket"

type message struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	URI     string            `json:"uri,omitempty"`
	Payload transport.Payload `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

var permissions = []string{
	"LAUNCH", "CONTROL_AUDIO", "CONTROL_DISPLAY", "CONTROL_INPUT_JOYSTICK",
	"CONTROL_INPUT_MEDIA_PLAYBACK", "CONTROL_INPUT_TEXT", "CONTROL_MOUSE_AND_KEYBOARD",
	"CONTROL_POWER", "READ_APP_STATUS", "READ_CURRENT_CHANNEL", "READ_INSTALLED_APPS",
	"READ_RUNNING_APPS", "READ_INPUT_DEVICE_LIST", "WRITE_NOTIFICATION_TOAST",
	"CONTROL_TV_SCREEN", "CONTROL_INPUT_TV",
}

// defaultManifest is sent with every register request.
func defaultManifest() transport.Payload {
	return transport.Payload{
		"manifestVersion": 1,
		"appVersion":      "1.0",
		"signed": map[string]any{
			"appId":             "com.graylogic.tvbridge",
			"vendorId":          "com.graylogic",
			"created":           "20260301",
			"localizedAppNames": map[string]any{"": "Gray Logic TV Bridge"},
			"permissions":       permissions,
			"serial":            "tvbridge",
		},
		"permissions": permissions,
		"signatures": []map[string]any{
			{"signatureVersion": 1, "signature": ""},
		},
	}
}
