package network

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
)

func neigh(ip, mac string, state int) netlink.Neigh {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return netlink.Neigh{IP: net.ParseIP(ip), HardwareAddr: hw, State: state}
}

// staticNeighbours serves a fixed neighbour table that tests may replace.
type staticNeighbours struct {
	mu     sync.Mutex
	neighs []netlink.Neigh
	err    error
	calls  int
}

func (s *staticNeighbours) list(int) ([]netlink.Neigh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.neighs, s.err
}

func (s *staticNeighbours) set(neighs ...netlink.Neigh) {
	s.mu.Lock()
	s.neighs = neighs
	s.mu.Unlock()
}

func newTestARPTable(src *staticNeighbours) *ARPTable {
	table := NewARPTable("")
	table.list = src.list
	return table
}

func TestUsableNeighbours(t *testing.T) {
	entries := usableNeighbours([]netlink.Neigh{
		neigh("192.0.2.5", "aa:bb:cc:dd:ee:ff", netlink.NUD_REACHABLE),
		neigh("192.0.2.6", "aa:bb:cc:dd:ee:02", netlink.NUD_STALE),
		neigh("192.0.2.7", "AA:BB:CC:DD:EE:01", netlink.NUD_DELAY),
		neigh("192.0.2.8", "aa:bb:cc:dd:ee:03", netlink.NUD_FAILED),
		neigh("192.0.2.10", "aa:bb:cc:dd:ee:04", netlink.NUD_PERMANENT),
		neigh("192.0.2.11", "00:00:00:00:00:00", netlink.NUD_REACHABLE),
		neigh("2001:db8::1", "aa:bb:cc:dd:ee:05", netlink.NUD_REACHABLE),
		{IP: net.ParseIP("192.0.2.12"), State: netlink.NUD_INCOMPLETE},
	})

	assert.Equal(t, map[string]identity.MAC{
		"192.0.2.5":  "aa:bb:cc:dd:ee:ff",
		"192.0.2.7":  "aa:bb:cc:dd:ee:01",
		"192.0.2.10": "aa:bb:cc:dd:ee:04",
	}, entries)
}

func TestARPTable_ResolveMAC(t *testing.T) {
	src := &staticNeighbours{}
	src.set(neigh("192.0.2.5", "aa:bb:cc:dd:ee:ff", netlink.NUD_REACHABLE))
	table := newTestARPTable(src)
	ctx := context.Background()

	assert.Equal(t, identity.MAC("aa:bb:cc:dd:ee:ff"), table.ResolveMAC(ctx, "192.0.2.5"))
	assert.Equal(t, identity.Unknown, table.ResolveMAC(ctx, "not-an-ip"))
	assert.Equal(t, identity.Unknown, table.ResolveMAC(ctx, "2001:db8::1"))
}

func TestARPTable_StaleEntryIsUnknown(t *testing.T) {
	src := &staticNeighbours{}
	src.set(neigh("192.0.2.5", "aa:bb:cc:dd:ee:ff", netlink.NUD_STALE))
	table := newTestARPTable(src)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Equal(t, identity.Unknown, table.ResolveMAC(ctx, "192.0.2.5"))
}

func TestARPTable_ListFailureIsUnknown(t *testing.T) {
	src := &staticNeighbours{err: errors.New("netlink: operation not permitted")}
	table := newTestARPTable(src)

	assert.Equal(t, identity.Unknown, table.ResolveMAC(context.Background(), "192.0.2.5"))
}

func TestARPTable_PicksUpNewEntries(t *testing.T) {
	src := &staticNeighbours{}
	table := newTestARPTable(src)
	ctx := context.Background()

	assert.Equal(t, identity.Unknown, table.ResolveMAC(ctx, "192.0.2.5"))

	src.set(neigh("192.0.2.5", "aa:bb:cc:dd:ee:ff", netlink.NUD_REACHABLE))
	assert.Equal(t, identity.MAC("aa:bb:cc:dd:ee:ff"), table.ResolveMAC(ctx, "192.0.2.5"))
}

func TestARPTable_CachesSnapshot(t *testing.T) {
	src := &staticNeighbours{}
	src.set(
		neigh("192.0.2.5", "aa:bb:cc:dd:ee:ff", netlink.NUD_REACHABLE),
		neigh("192.0.2.6", "aa:bb:cc:dd:ee:01", netlink.NUD_REACHABLE),
	)
	table := newTestARPTable(src)
	ctx := context.Background()

	table.ResolveMAC(ctx, "192.0.2.5")
	table.ResolveMAC(ctx, "192.0.2.6")

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.calls)
}

func TestMagicPacket(t *testing.T) {
	packet, err := MagicPacket("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.Len(t, packet, 6+16*6)

	assert.Equal(t, bytes.Repeat([]byte{0xff}, 6), packet[:6])
	for i := 0; i < 16; i++ {
		off := 6 + i*6
		assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, packet[off:off+6])
	}

	_, err = MagicPacket(identity.Unknown)
	assert.ErrorIs(t, err, identity.ErrInvalidMAC)
}

func TestWakeSender_SendWake(t *testing.T) {
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	sender := NewWakeSender(listener.LocalAddr().String())
	require.NoError(t, sender.SendWake("aa:bb:cc:dd:ee:ff"))

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	want, _ := MagicPacket("aa:bb:cc:dd:ee:ff")
	assert.Equal(t, want, buf[:n])
}

func TestICMPProber_InvalidAddress(t *testing.T) {
	prober := NewICMPProber(100 * time.Millisecond)
	assert.False(t, prober.ProbeReachable(context.Background(), "tv.local"))
}

func TestAnnouncements(t *testing.T) {
	ips := []net.IP{net.IPv4(192, 0, 2, 5), net.IPv4(192, 0, 2, 15)}
	txt := []string{"features=0x1", "deviceid=AA:BB:CC:DD:EE:FF"}

	got := announcements("[LG] webOS TV OLED55", "LGwebOSTV.local.", ips, txt, "_airplay._tcp")
	require.Len(t, got, 2)
	assert.Equal(t, Announcement{
		Address: "192.0.2.5",
		Name:    "[LG] webOS TV OLED55",
		Service: "_airplay._tcp",
		MAC:     "aa:bb:cc:dd:ee:ff",
	}, got[0])
	assert.Equal(t, "192.0.2.15", got[1].Address)

	unnamed := announcements("", "LGwebOSTV.local.", ips[:1], nil, "_airplay._tcp")
	require.Len(t, unnamed, 1)
	assert.Equal(t, "LGwebOSTV.local", unnamed[0].Name)
	assert.Equal(t, identity.Unknown, unnamed[0].MAC)

	assert.Nil(t, entryToAnnouncements(nil, "_airplay._tcp"))
}

func TestMacFromTXT(t *testing.T) {
	assert.Equal(t, identity.Unknown, macFromTXT(nil))
	assert.Equal(t, identity.Unknown, macFromTXT([]string{"deviceid=zz"}))
	assert.Equal(t, identity.MAC("aa:bb:cc:dd:ee:01"), macFromTXT([]string{"MAC=aa-bb-cc-dd-ee-01"}))
}

func TestMDNSScanner_RequiresService(t *testing.T) {
	_, err := NewMDNSScanner(MDNSConfig{}).Browse(context.Background())
	assert.ErrorIs(t, err, ErrBrowseFailed)
}
