package webos

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// Action names.
const (
	ActionLaunchApp    = "launchApp"
	ActionPressKey     = "pressKey"
	ActionClick        = "click"
	ActionSendText     = "sendText"
	ActionSendEnter    = "sendEnter"
	ActionSendDelete   = "sendDelete"
	ActionNotify       = "notify"
	ActionMediaControl = "mediaControl"
	ActionChannelUp    = "channelUp"
	ActionChannelDown  = "channelDown"
	ActionVolumeUp     = "volumeUp"
	ActionVolumeDown   = "volumeDown"
)

// Keys accepted by pressKey.
var Keys = []string{
	"HOME", "BACK", "UP", "DOWN", "LEFT", "RIGHT", "ENTER", "MENU", "EXIT",
	"INFO", "RED", "GREEN", "YELLOW", "BLUE", "DASH",
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
}

// MediaOps accepted by mediaControl.
var MediaOps = []string{"play", "pause", "stop", "rewind", "fastForward"}

// Action is one variant of the closed action catalogue. Each variant
// carries its validated input and maps to a fixed command sequence.
type Action interface {
	Name() string
	run(ctx context.Context, t actionTarget) error
}

// actionTarget is what an action needs from its device.
type actionTarget interface {
	request(ctx context.Context, uri string, payload transport.Payload) error
	pointer(ctx context.Context) (transport.PointerSocket, error)
	appTable() *AppTable
}

// LaunchApp starts the app with the given title.
type LaunchApp struct{ Title string }

// PressKey sends one remote key over the pointer socket.
type PressKey struct{ Key string }

// Click clicks at the pointer position.
type Click struct{}

// SendText types into the focused text field.
type SendText struct{ Text string }

// SendEnter submits the focused text field.
type SendEnter struct{}

// SendDelete removes Count characters before the cursor.
type SendDelete struct{ Count int }

// Notify shows a toast on screen.
type Notify struct{ Message string }

// MediaControl drives playback.
type MediaControl struct{ Op string }

// ChannelUp tunes to the next channel.
type ChannelUp struct{}

// ChannelDown tunes to the previous channel.
type ChannelDown struct{}

// VolumeUp raises the volume one step.
type VolumeUp struct{}

// VolumeDown lowers the volume one step.
type VolumeDown struct{}

func (LaunchApp) Name() string    { return ActionLaunchApp }
func (PressKey) Name() string     { return ActionPressKey }
func (Click) Name() string        { return ActionClick }
func (SendText) Name() string     { return ActionSendText }
func (SendEnter) Name() string    { return ActionSendEnter }
func (SendDelete) Name() string   { return ActionSendDelete }
func (Notify) Name() string       { return ActionNotify }
func (MediaControl) Name() string { return ActionMediaControl }
func (ChannelUp) Name() string    { return ActionChannelUp }
func (ChannelDown) Name() string  { return ActionChannelDown }
func (VolumeUp) Name() string     { return ActionVolumeUp }
func (VolumeDown) Name() string   { return ActionVolumeDown }

func (a LaunchApp) run(ctx context.Context, t actionTarget) error {
	id, err := t.appTable().Lookup(a.Title)
	if err != nil {
		return err
	}
	return t.request(ctx, uriLaunch, transport.Payload{"id": id})
}

func (a PressKey) run(ctx context.Context, t actionTarget) error {
	return withPointer(ctx, t, func(p transport.PointerSocket) error { return p.Button(a.Key) })
}

func (Click) run(ctx context.Context, t actionTarget) error {
	return withPointer(ctx, t, func(p transport.PointerSocket) error { return p.Click() })
}

func (a SendText) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriInsertText, transport.Payload{"text": a.Text, "replace": 0})
}

func (SendEnter) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriSendEnterKey, nil)
}

func (a SendDelete) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriDeleteCharacters, transport.Payload{"count": a.Count})
}

func (a Notify) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriCreateToast, transport.Payload{"message": a.Message})
}

func (a MediaControl) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriMediaControlsBase+a.Op, nil)
}

func (ChannelUp) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriChannelUp, nil)
}

func (ChannelDown) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriChannelDown, nil)
}

func (VolumeUp) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriVolumeUp, nil)
}

func (VolumeDown) run(ctx context.Context, t actionTarget) error {
	return t.request(ctx, uriVolumeDown, nil)
}

func withPointer(ctx context.Context, t actionTarget, send func(transport.PointerSocket) error) error {
	p, err := t.pointer(ctx)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck // One-shot socket
	return send(p)
}

// ParseAction validates input for the named action.
//
// Parameters:
//   - name: Action name from the catalogue
//   - input: A bare value or an object holding the named field, e.g.
//     "Netflix" or {"title": "Netflix"} for launchApp
//
// Returns:
//   - Action: The typed variant
//   - error: ErrUnknownAction or ErrInvalidInput
func ParseAction(name string, input any) (Action, error) {
	switch name {
	case ActionLaunchApp:
		title, err := stringInput(input, "title")
		if err != nil {
			return nil, err
		}
		return LaunchApp{Title: title}, nil
	case ActionPressKey:
		key, err := stringInput(input, "key")
		if err != nil {
			return nil, err
		}
		key = strings.ToUpper(key)
		if !slices.Contains(Keys, key) {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidInput, key)
		}
		return PressKey{Key: key}, nil
	case ActionClick:
		return Click{}, nil
	case ActionSendText:
		text, err := stringInput(input, "text")
		if err != nil {
			return nil, err
		}
		return SendText{Text: text}, nil
	case ActionSendEnter:
		return SendEnter{}, nil
	case ActionSendDelete:
		if input == nil {
			return SendDelete{Count: 1}, nil
		}
		count, ok := toInt(field(input, "count"))
		if !ok || count < 1 {
			return nil, fmt.Errorf("%w: count must be a positive integer", ErrInvalidInput)
		}
		return SendDelete{Count: count}, nil
	case ActionNotify:
		msg, err := stringInput(input, "message")
		if err != nil {
			return nil, err
		}
		return Notify{Message: msg}, nil
	case ActionMediaControl:
		op, err := stringInput(input, "op")
		if err != nil {
			return nil, err
		}
		if !slices.Contains(MediaOps, op) {
			return nil, fmt.Errorf("%w: unknown media operation %q", ErrInvalidInput, op)
		}
		return MediaControl{Op: op}, nil
	case ActionChannelUp:
		return ChannelUp{}, nil
	case ActionChannelDown:
		return ChannelDown{}, nil
	case ActionVolumeUp:
		return VolumeUp{}, nil
	case ActionVolumeDown:
		return VolumeDown{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
}

// field unwraps {"key": v} to v and passes anything else through.
func field(input any, key string) any {
	if m, ok := input.(map[string]any); ok {
		return m[key]
	}
	return input
}

func stringInput(input any, key string) (string, error) {
	s, ok := field(input, key).(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidInput, key)
	}
	return s, nil
}

// ActionDescriptor describes an action in the device registration.
type ActionDescriptor struct {
	Name  string   `json:"name"`
	Input string   `json:"input,omitempty"`
	Enum  []string `json:"enum,omitempty"`
}

func describeActions(apps *AppTable) []ActionDescriptor {
	return []ActionDescriptor{
		{Name: ActionLaunchApp, Input: "string", Enum: apps.Titles()},
		{Name: ActionPressKey, Input: "string", Enum: Keys},
		{Name: ActionClick},
		{Name: ActionSendText, Input: "string"},
		{Name: ActionSendEnter},
		{Name: ActionSendDelete, Input: "integer"},
		{Name: ActionNotify, Input: "string"},
		{Name: ActionMediaControl, Input: "string", Enum: MediaOps},
		{Name: ActionChannelUp},
		{Name: ActionChannelDown},
		{Name: ActionVolumeUp},
		{Name: ActionVolumeDown},
	}
}
