package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
	"github.com/nerrad567/gray-logic-tvbridge/internal/network"
	"github.com/nerrad567/gray-logic-tvbridge/internal/session"
)

const (
	defaultInterval      = 30 * time.Second
	defaultBrowseTimeout = 5 * time.Second
)

// MACResolver maps an address to a hardware address, returning
// identity.Unknown on any failure.
type MACResolver interface {
	ResolveMAC(ctx context.Context, address string) identity.MAC
}

// Prober checks reachability.
type Prober interface {
	ProbeReachable(ctx context.Context, address string) bool
}

// Scanner streams announcements until its context ends.
type Scanner interface {
	Browse(ctx context.Context) (<-chan network.Announcement, error)
}

// SessionManager is the part of *session.Manager the resolver drives.
type SessionManager interface {
	Connect(ctx context.Context, id identity.DeviceIdentity) (*session.Session, error)
	Disconnect(s *session.Session)
	Lookup(mac identity.MAC) (*session.Session, bool)
	Sessions() []*session.Session
}

// IdentityRecorder remembers where each TV was last seen. Optional.
type IdentityRecorder interface {
	Remember(ctx context.Context, id identity.DeviceIdentity) error
	List(ctx context.Context) ([]identity.DeviceIdentity, error)
}

// Logger is the subset of logging.Logger the resolver uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Candidate is an address worth checking, with whatever else is known.
type Candidate struct {
	Address string
	Name    string

	// MAC is set when the announcement carried one.
	MAC identity.MAC
}

// Config controls scanning.
type Config struct {
	// Interval between cycles. Default: 30s.
	Interval time.Duration

	// BrowseTimeout bounds each mDNS browse. Default: 5s.
	BrowseTimeout time.Duration

	// NameFilter keeps announcements whose name contains it, ignoring case.
	// Empty keeps everything.
	NameFilter string

	// Static addresses are checked every cycle.
	Static []Candidate
}

// Options wires a Resolver.
type Options struct {
	Config   Config
	Known    *identity.KnownSet
	MACs     MACResolver
	Prober   Prober
	Scanner  Scanner
	Sessions SessionManager

	// Recorder is optional. When set, remembered addresses are scanned
	// alongside the static ones.
	Recorder IdentityRecorder

	Logger Logger
}

// Resolver owns the known-device set and runs discovery cycles.
//
// Thread Safety:
//   - Cycles may overlap; a MAC is only ever worked on by one goroutine
//     at a time, others skip it until the next cycle.
type Resolver struct {
	cfg      Config
	known    *identity.KnownSet
	macs     MACResolver
	prober   Prober
	scanner  Scanner
	sessions SessionManager
	recorder IdentityRecorder
	logger   Logger

	busy   map[identity.MAC]struct{}
	busyMu sync.Mutex

	wg sync.WaitGroup
}

// NewResolver validates opts and applies defaults.
func NewResolver(opts Options) (*Resolver, error) {
	switch {
	case opts.Known == nil:
		return nil, fmt.Errorf("known set is required")
	case opts.MACs == nil:
		return nil, fmt.Errorf("mac resolver is required")
	case opts.Prober == nil:
		return nil, fmt.Errorf("prober is required")
	case opts.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	}

	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BrowseTimeout <= 0 {
		cfg.BrowseTimeout = defaultBrowseTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Resolver{
		cfg:      cfg,
		known:    opts.Known,
		macs:     opts.MACs,
		prober:   opts.Prober,
		scanner:  opts.Scanner,
		sessions: opts.Sessions,
		recorder: opts.Recorder,
		logger:   logger,
		busy:     make(map[identity.MAC]struct{}),
	}, nil
}

// Run starts a cycle immediately and then every Interval until ctx ends.
// Ticks never wait for the previous cycle. Run returns after in-flight
// work has finished.
func (r *Resolver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case <-ticker.C:
			r.spawn(ctx)
		}
	}
}

func (r *Resolver) spawn(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Cycle(ctx)
	}()
}

// Cycle runs one full discovery pass and returns when it is done.
func (r *Resolver) Cycle(ctx context.Context) {
	r.Recheck(ctx)
	r.ScanConfigured(ctx, r.configuredCandidates(ctx))
	r.ScanNetwork(ctx)
}

// configuredCandidates merges static entries with remembered addresses.
func (r *Resolver) configuredCandidates(ctx context.Context) []Candidate {
	seen := make(map[string]struct{}, len(r.cfg.Static))
	out := make([]Candidate, 0, len(r.cfg.Static))
	for _, c := range r.cfg.Static {
		if _, dup := seen[c.Address]; dup {
			continue
		}
		seen[c.Address] = struct{}{}
		out = append(out, c)
	}

	if r.recorder == nil {
		return out
	}
	remembered, err := r.recorder.List(ctx)
	if err != nil {
		r.logger.Warn("listing remembered tvs failed", "error", err)
		return out
	}
	for _, id := range remembered {
		if _, dup := seen[id.Address]; dup || r.known.IsIgnored(id.MAC) {
			continue
		}
		seen[id.Address] = struct{}{}
		out = append(out, Candidate{Address: id.Address, Name: id.Name})
	}
	return out
}

// ScanConfigured checks each candidate concurrently and returns once all
// have been considered.
func (r *Resolver) ScanConfigured(ctx context.Context, candidates []Candidate) {
	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Consider(ctx, c)
		}()
	}
	wg.Wait()
}

// ScanNetwork browses for announcements for BrowseTimeout and considers
// every matching one. A nil scanner makes this a no-op.
func (r *Resolver) ScanNetwork(ctx context.Context) {
	if r.scanner == nil {
		return
	}
	browseCtx, cancel := context.WithTimeout(ctx, r.cfg.BrowseTimeout)
	defer cancel()

	announcements, err := r.scanner.Browse(browseCtx)
	if err != nil {
		r.logger.Warn("network scan failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for a := range announcements {
		if !r.wanted(a) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Consider(ctx, Candidate{Address: a.Address, Name: a.Name, MAC: a.MAC})
		}()
	}
	wg.Wait()
}

// wanted filters announcements before any MAC lookup.
func (r *Resolver) wanted(a network.Announcement) bool {
	if r.cfg.NameFilter != "" &&
		!strings.Contains(strings.ToLower(a.Name), strings.ToLower(r.cfg.NameFilter)) {
		return false
	}
	if a.MAC.IsUnknown() {
		return true
	}
	if r.known.IsIgnored(a.MAC) {
		return false
	}
	if known, ok := r.known.Lookup(a.MAC); ok && known.Address == a.Address {
		return false
	}
	return true
}

// Consider resolves c to an identity and reconciles it with the current
// sessions.
func (r *Resolver) Consider(ctx context.Context, c Candidate) {
	mac := c.MAC
	if mac.IsUnknown() {
		mac = r.macs.ResolveMAC(ctx, c.Address)
	}
	if mac.IsUnknown() {
		r.logger.Warn("mac lookup failed, skipping", "address", c.Address)
		return
	}
	if r.known.IsIgnored(mac) {
		r.logger.Debug("ignoring removed tv", "mac", string(mac))
		return
	}
	if !r.claim(mac) {
		return
	}
	defer r.unclaim(mac)

	r.accept(ctx, identity.DeviceIdentity{MAC: mac, Address: c.Address, Name: c.Name})
}

func (r *Resolver) accept(ctx context.Context, id identity.DeviceIdentity) {
	if existing, ok := r.sessions.Lookup(id.MAC); ok {
		old := existing.Identity()
		if id.Name == "" {
			id.Name = old.Name
		}

		switch {
		case old.Address != id.Address && existing.State() != session.Disconnected &&
			!r.prober.ProbeReachable(ctx, id.Address):
			// A stale neighbour entry or an old configured address; the live
			// session wins.
			r.logger.Debug("keeping live session, candidate address unreachable",
				"device", old.String(), "candidate", id.Address)
			return
		case old.Address != id.Address:
			r.logger.Info("tv moved", "mac", string(id.MAC), "from", old.Address, "to", id.Address)
			r.sessions.Disconnect(existing)
		case existing.State() != session.Disconnected:
			return
		case !r.prober.ProbeReachable(ctx, id.Address):
			r.logger.Info("tv unreachable, dropping", "device", old.String())
			r.sessions.Disconnect(existing)
			return
		default:
			r.logger.Info("tv back, reconnecting", "device", old.String())
			r.sessions.Disconnect(existing)
		}
	}

	r.remember(ctx, id)
	if _, err := r.sessions.Connect(ctx, id); err != nil && !errors.Is(err, identity.ErrAlreadyKnown) {
		r.logger.Warn("connect failed, will retry next cycle", "device", id.String(), "error", err)
	}
}

// Recheck probes every session whose transport has dropped: reachable ones
// are reconnected at the same address, the rest are torn down.
func (r *Resolver) Recheck(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range r.sessions.Sessions() {
		if s.State() != session.Disconnected {
			continue
		}
		mac := s.Identity().MAC
		if !r.claim(mac) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.unclaim(mac)
			r.accept(ctx, s.Identity())
		}()
	}
	wg.Wait()
}

func (r *Resolver) remember(ctx context.Context, id identity.DeviceIdentity) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Remember(ctx, id); err != nil {
		r.logger.Warn("remembering tv failed", "device", id.String(), "error", err)
	}
}

func (r *Resolver) claim(mac identity.MAC) bool {
	r.busyMu.Lock()
	defer r.busyMu.Unlock()
	if _, ok := r.busy[mac]; ok {
		return false
	}
	r.busy[mac] = struct{}{}
	return true
}

func (r *Resolver) unclaim(mac identity.MAC) {
	r.busyMu.Lock()
	delete(r.busy, mac)
	r.busyMu.Unlock()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
