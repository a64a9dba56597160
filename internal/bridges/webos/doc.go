// Package webos is the property and action dispatch layer for webOS TVs
// and their host-framework boundary over MQTT.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   control    ┌──────┐
//	│   Gray Logic    │   MQTT   │  webOS Bridge   │   session    │  TV  │
//	│      Core       │◄────────►│   (this pkg)    │◄────────────►│      │
//	└─────────────────┘          └─────────────────┘              └──────┘
//
// The session manager hands every connected session to Bridge.Attach,
// which builds a Device, runs its initial fetch (app list, foreground
// app, volume and mute), publishes the retained registration and state,
// and starts the 5 second poll-and-diff loop.
//
// # Properties
//
//   - on (boolean): true writes send Wake-on-LAN, false turns the TV off
//   - volume (integer 0-100)
//   - mute (boolean)
//   - activeApp (string, read-only): title of the foreground app
//
// A change notification is published exactly when a value differs from
// the last notified one. Writes equal to the cached value issue no command.
//
// # Actions
//
// Actions are a closed set of typed variants built by ParseAction:
// launchApp, pressKey, click, sendText, sendEnter, sendDelete, notify,
// mediaControl, channelUp, channelDown, volumeUp and volumeDown. Invalid
// input is a failed ack, never a fault.
//
// # Topics
//
//	graylogic/command/webos/{device_id}   host → bridge
//	graylogic/ack/webos/{device_id}       bridge → host
//	graylogic/state/webos/{device_id}     retained snapshot
//	graylogic/device/webos/{device_id}    retained registration, empty = gone
//	graylogic/request/webos/{request_id}  read_state
//	graylogic/response/webos/{request_id}
//	graylogic/health/webos                retained health and Last Will
package webos
