// Package transport defines the control-connection boundary between the
// bridge and one TV: an authenticated request/response client plus a
// pointer socket for continuous input.
//
// The wire protocol lives behind Dialer; see the wsrpc package for the
// WebSocket implementation.
package transport

import (
	"context"
	"errors"
)

// Payload is a JSON object exchanged with the TV.
type Payload map[string]any

var (
	// ErrClosed is returned for requests on, or pending during, a closed connection.
	ErrClosed = errors.New("transport: connection closed")

	// ErrRequestFailed is returned when the TV answers a request with an error.
	ErrRequestFailed = errors.New("transport: request failed")

	// ErrPairingRejected is returned when the user declines or the prompt times out.
	ErrPairingRejected = errors.New("transport: pairing rejected")
)

// Dialer opens authenticated connections.
type Dialer interface {
	// Dial connects to address and completes the pairing handshake using
	// key, which may be empty on first contact. It returns once the
	// connection is usable or has failed.
	Dial(ctx context.Context, address, key string) (Client, error)
}

// Client is one open control connection.
//
// Requests may run concurrently; responses are correlated by id and are
// not guaranteed to arrive in request order.
type Client interface {
	Request(ctx context.Context, uri string, payload Payload) (Payload, error)

	// PointerSocket opens the secondary input socket used for remote keys.
	PointerSocket(ctx context.Context) (PointerSocket, error)

	// IssuedKeys yields the pairing key at most once, only when the TV
	// issued a key different from the one dialled with. It is closed once
	// the handshake is over, so receiving never blocks after Dial returns.
	IssuedKeys() <-chan string

	// Done is closed when the connection drops or is closed.
	Done() <-chan struct{}

	Close() error
}

// PointerSocket sends pointer and button events.
type PointerSocket interface {
	Button(name string) error
	Click() error
	Close() error
}
