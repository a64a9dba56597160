package session

import (
	"sync"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// State is the connection state of one session.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one TV at one address with at most one open client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Session struct {
	identity identity.DeviceIdentity

	mu       sync.Mutex
	client   transport.Client
	state    State
	attached bool
	closed   bool

	// stop is closed on teardown; per-session loops exit on it.
	stop chan struct{}
}

func newSession(id identity.DeviceIdentity) *Session {
	return &Session{
		identity: id,
		state:    Connecting,
		stop:     make(chan struct{}),
	}
}

// Identity returns the identity the session was opened for.
func (s *Session) Identity() identity.DeviceIdentity {
	return s.identity
}

// DeviceID is shorthand for Identity().DeviceID().
func (s *Session) DeviceID() string {
	return s.identity.DeviceID()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the open transport client, or nil before dialling
// completes and after teardown.
func (s *Session) Client() transport.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.stop
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if !s.closed {
		s.state = state
	}
	s.mu.Unlock()
}

// teardown marks the session closed and reports what needs releasing.
// Only the first call returns ok.
func (s *Session) teardown() (client transport.Client, attached, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, false
	}
	s.closed = true
	s.state = Disconnected
	client, attached = s.client, s.attached
	s.client = nil
	close(s.stop)
	return client, attached, true
}
