package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/transport"
)

// Attacher is the dispatch side of a session. The webos bridge implements it.
type Attacher interface {
	// Attach runs the initial state fetch and publishes the device. An
	// error aborts the session.
	Attach(ctx context.Context, s *Session) error

	// Detach stops per-session work and unpublishes the device. It is
	// called once, only for sessions whose Attach succeeded.
	Detach(s *Session)

	// ConnectionLost is called when an attached session's transport drops.
	ConnectionLost(s *Session)
}

// Logger is the subset of logging.Logger the manager uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ErrorFunc receives non-fatal failures such as key persistence errors.
type ErrorFunc func(id identity.DeviceIdentity, err error)

// Options configures a Manager.
type Options struct {
	// Known is shared with the discovery resolver. Required.
	Known *identity.KnownSet

	// Keys persists pairing keys. Required.
	Keys identity.KeyStore

	// Dialer opens transport clients. Required.
	Dialer transport.Dialer

	// Attacher receives every connected session. Required.
	Attacher Attacher

	// OnError is optional.
	OnError ErrorFunc

	Logger Logger
}

// Manager opens and tears down sessions.
//
// Thread Safety:
//   - All methods are safe for concurrent use. At most one Connect per MAC
//     is in flight; extra calls return identity.ErrAlreadyKnown.
type Manager struct {
	known    *identity.KnownSet
	keys     identity.KeyStore
	dialer   transport.Dialer
	attacher Attacher
	onError  ErrorFunc
	logger   Logger

	mu       sync.RWMutex
	sessions map[identity.MAC]*Session
}

// NewManager creates a manager.
//
// Parameters:
//   - opts: Collaborators; Known, Keys, Dialer and Attacher are required
//
// Returns:
//   - *Manager: Ready for Connect
//   - error: If a required collaborator is missing
func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Known == nil:
		return nil, fmt.Errorf("known set is required")
	case opts.Keys == nil:
		return nil, fmt.Errorf("key store is required")
	case opts.Dialer == nil:
		return nil, fmt.Errorf("dialer is required")
	case opts.Attacher == nil:
		return nil, fmt.Errorf("attacher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Manager{
		known:    opts.Known,
		keys:     opts.Keys,
		dialer:   opts.Dialer,
		attacher: opts.Attacher,
		onError:  opts.OnError,
		logger:   logger,
		sessions: make(map[identity.MAC]*Session),
	}, nil
}

// Connect opens a session for id and blocks until it is attached or has
// failed. On failure the MAC is released so a later call may retry.
//
// Parameters:
//   - ctx: Bounds dialling, pairing and the initial fetch
//   - id: Identity with a resolved MAC and current address
//
// Returns:
//   - *Session: Connected and attached session
//   - error: identity.ErrAlreadyKnown if a session for the MAC exists or is
//     pending, otherwise the dial or initialisation failure
func (m *Manager) Connect(ctx context.Context, id identity.DeviceIdentity) (*Session, error) {
	if id.MAC.IsUnknown() {
		return nil, ErrUnknownMAC
	}
	if err := m.known.Reserve(id); err != nil {
		return nil, err
	}

	s := newSession(id)
	m.mu.Lock()
	m.sessions[id.MAC] = s
	m.mu.Unlock()

	if err := m.open(ctx, s); err != nil {
		m.Disconnect(s)
		m.logger.Warn("session failed", "device", id.String(), "error", err)
		return nil, err
	}

	m.logger.Info("session connected", "device", id.String(), "device_id", id.DeviceID())
	return s, nil
}

func (m *Manager) open(ctx context.Context, s *Session) error {
	id := s.identity

	key, _, err := m.keys.GetKey(ctx, id.MAC)
	if err != nil {
		m.logger.Warn("pairing key lookup failed, pairing afresh", "device", id.String(), "error", err)
		key = ""
	}

	client, err := m.dialer.Dial(ctx, id.Address, key)
	if err != nil {
		return fmt.Errorf("connecting %s: %w", id, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		client.Close() //nolint:errcheck // Session already gone
		return ErrTornDown
	}
	s.client = client
	s.mu.Unlock()

	for issued := range client.IssuedKeys() {
		if err := m.keys.PutKey(ctx, id.MAC, issued); err != nil {
			m.logger.Error("storing pairing key failed, session is ephemeral", "device", id.String(), "error", err)
			if m.onError != nil {
				m.onError(id, err)
			}
		}
	}

	s.setState(Connected)
	if err := m.attacher.Attach(ctx, s); err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		m.attacher.Detach(s)
		return ErrTornDown
	}
	s.attached = true
	s.mu.Unlock()

	go m.watch(s, client)
	return nil
}

// watch moves s to Disconnected when its transport drops.
func (m *Manager) watch(s *Session, client transport.Client) {
	select {
	case <-s.stop:
	case <-client.Done():
		s.setState(Disconnected)
		select {
		case <-s.stop:
			return
		default:
		}
		m.logger.Warn("session dropped", "device", s.identity.String())
		m.attacher.ConnectionLost(s)
	}
}

// Disconnect releases the client, frees the MAC and unpublishes the device
// if it was attached. Safe on sessions that never finished connecting and
// on repeated calls.
func (m *Manager) Disconnect(s *Session) {
	if s == nil {
		return
	}
	client, attached, ok := s.teardown()
	if !ok {
		return
	}
	if client != nil {
		if err := client.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
			m.logger.Debug("closing client", "device", s.identity.String(), "error", err)
		}
	}
	if attached {
		m.attacher.Detach(s)
	}

	m.mu.Lock()
	if m.sessions[s.identity.MAC] == s {
		delete(m.sessions, s.identity.MAC)
		m.known.Release(s.identity.MAC)
	}
	m.mu.Unlock()

	m.logger.Info("session closed", "device", s.identity.String())
}

// Lookup returns the session for mac, pending or live.
func (m *Manager) Lookup(mac identity.MAC) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[mac]
	return s, ok
}

// Sessions returns every pending or live session.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Remove tears down the session for mac and keeps discovery from
// reconnecting it until Readd.
func (m *Manager) Remove(mac identity.MAC) {
	m.known.Ignore(mac)
	if s, ok := m.Lookup(mac); ok {
		m.Disconnect(s)
	}
}

// Readd lets discovery pick mac up again.
func (m *Manager) Readd(mac identity.MAC) {
	m.known.Unignore(mac)
}

// Close tears down every session.
func (m *Manager) Close() {
	for _, s := range m.Sessions() {
		m.Disconnect(s)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
