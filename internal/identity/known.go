package identity

import "sync"

// KnownSet holds the MACs that currently have a pending or live session,
// together with the address each one was reserved at.
//
// At most one reservation exists per MAC; that is the guard that keeps two
// connection attempts for one TV from overlapping.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type KnownSet struct {
	mu      sync.RWMutex
	entries map[MAC]DeviceIdentity
	ignored map[MAC]struct{}
}

// NewKnownSet creates an empty set.
func NewKnownSet() *KnownSet {
	return &KnownSet{
		entries: make(map[MAC]DeviceIdentity),
		ignored: make(map[MAC]struct{}),
	}
}

// Reserve claims id.MAC. It fails with ErrAlreadyKnown if the MAC is
// already reserved.
func (k *KnownSet) Reserve(id DeviceIdentity) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.entries[id.MAC]; ok {
		return ErrAlreadyKnown
	}
	k.entries[id.MAC] = id
	return nil
}

// Release drops the reservation for mac. Releasing an unknown MAC is a no-op.
func (k *KnownSet) Release(mac MAC) {
	k.mu.Lock()
	delete(k.entries, mac)
	k.mu.Unlock()
}

// Lookup returns the identity reserved for mac.
func (k *KnownSet) Lookup(mac MAC) (DeviceIdentity, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.entries[mac]
	return id, ok
}

// Len returns the number of reservations.
func (k *KnownSet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Ignore marks mac as removed by the host so discovery leaves it alone.
func (k *KnownSet) Ignore(mac MAC) {
	k.mu.Lock()
	k.ignored[mac] = struct{}{}
	k.mu.Unlock()
}

// Unignore clears a previous Ignore.
func (k *KnownSet) Unignore(mac MAC) {
	k.mu.Lock()
	delete(k.ignored, mac)
	k.mu.Unlock()
}

// IsIgnored reports whether mac was removed by the host.
func (k *KnownSet) IsIgnored(mac MAC) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.ignored[mac]
	return ok
}
