package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
)

const (
	arpRefreshInterval = time.Second
	arpPrimeDelay      = 200 * time.Millisecond
	discardPort        = 9

	// usableNUD are the neighbour states whose link-layer address was
	// confirmed recently or set by hand. STALE and FAILED entries may name
	// a host that has since left the address.
	usableNUD = netlink.NUD_REACHABLE | netlink.NUD_DELAY | netlink.NUD_PROBE | netlink.NUD_PERMANENT
)

// neighbourLister returns the IPv4 neighbour entries of one link, or of
// every link when linkIndex is 0.
type neighbourLister func(linkIndex int) ([]netlink.Neigh, error)

func listNeighbours(linkIndex int) ([]netlink.Neigh, error) {
	return netlink.NeighList(linkIndex, netlink.FAMILY_V4)
}

// ARPTable resolves IPv4 addresses to MACs from the kernel neighbour table,
// read over rtnetlink. Snapshots are cached briefly so one discovery cycle
// does not dump the table per candidate.
//
// Thread Safety:
//   - Safe for concurrent use; lookups from a discovery cycle and a
//     liveness recheck may overlap.
type ARPTable struct {
	iface string
	list  neighbourLister

	mu       sync.RWMutex
	entries  map[string]identity.MAC
	loadedAt time.Time
}

// NewARPTable reads neighbours learned on iface, or on every interface
// when iface is empty.
func NewARPTable(iface string) *ARPTable {
	return &ARPTable{iface: iface, list: listNeighbours, entries: make(map[string]identity.MAC)}
}

// ResolveMAC returns the MAC for address or identity.Unknown.
//
// On a miss it sends one datagram to the address to make the kernel
// resolve it, waits briefly and looks again.
func (a *ARPTable) ResolveMAC(ctx context.Context, address string) identity.MAC {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return identity.Unknown
	}
	address = ip.String()

	if mac, ok := a.lookup(address, false); ok {
		return mac
	}

	prime(address)

	select {
	case <-ctx.Done():
		return identity.Unknown
	case <-time.After(arpPrimeDelay):
	}

	if mac, ok := a.lookup(address, true); ok {
		return mac
	}
	return identity.Unknown
}

func (a *ARPTable) lookup(address string, force bool) (identity.MAC, bool) {
	a.mu.RLock()
	fresh := time.Since(a.loadedAt) < arpRefreshInterval
	mac, ok := a.entries[address]
	a.mu.RUnlock()

	if fresh && !force {
		return mac, ok
	}

	if err := a.refresh(); err != nil {
		return identity.Unknown, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	mac, ok = a.entries[address]
	return mac, ok
}

func (a *ARPTable) refresh() error {
	linkIndex := 0
	if a.iface != "" {
		link, err := netlink.LinkByName(a.iface)
		if err != nil {
			return fmt.Errorf("interface %s: %w", a.iface, err)
		}
		linkIndex = link.Attrs().Index
	}

	neighs, err := a.list(linkIndex)
	if err != nil {
		return err
	}
	entries := usableNeighbours(neighs)

	a.mu.Lock()
	a.entries = entries
	a.loadedAt = time.Now()
	a.mu.Unlock()
	return nil
}

// usableNeighbours keeps IPv4 entries in a usable NUD state.
func usableNeighbours(neighs []netlink.Neigh) map[string]identity.MAC {
	entries := make(map[string]identity.MAC, len(neighs))
	for _, n := range neighs {
		if n.State&usableNUD == 0 {
			continue
		}
		ip := n.IP.To4()
		if ip == nil || len(n.HardwareAddr) == 0 {
			continue
		}
		mac, err := identity.ParseMAC(n.HardwareAddr.String())
		if err != nil || mac.IsUnknown() {
			continue
		}
		entries[ip.String()] = mac
	}
	return entries
}

// prime sends a throwaway datagram so the kernel performs ARP for address.
func prime(address string) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(address), Port: discardPort})
	if err != nil {
		return
	}
	_, _ = conn.Write([]byte{0})
	_ = conn.Close()
}
