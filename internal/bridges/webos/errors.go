package webos

import "errors"

// Domain errors for the webOS bridge package.
var (
	// ErrReadOnly is returned when writing a read-only property.
	ErrReadOnly = errors.New("webos: property is read-only")

	// ErrUnknownProperty is returned for property names the device does not expose.
	ErrUnknownProperty = errors.New("webos: unknown property")

	// ErrInvalidValue is returned when a property write has the wrong type or range.
	ErrInvalidValue = errors.New("webos: invalid property value")

	// ErrUnknownAction is returned for action names outside the catalogue.
	ErrUnknownAction = errors.New("webos: unknown action")

	// ErrInvalidInput is returned when an action input is missing, mistyped
	// or outside its enumeration.
	ErrInvalidInput = errors.New("webos: invalid action input")

	// ErrAppNotFound is returned when no installed app has the requested title.
	ErrAppNotFound = errors.New("webos: app not found")

	// ErrDeviceNotFound is returned when a command names a device with no session.
	ErrDeviceNotFound = errors.New("webos: device not found")

	// ErrNotConnected is returned when the device's transport is down.
	ErrNotConnected = errors.New("webos: device not connected")

	// ErrUnexpectedResponse is returned when a response lacks an expected field.
	ErrUnexpectedResponse = errors.New("webos: unexpected response")
)
