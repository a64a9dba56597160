package network

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
)

// Announcement is one mDNS answer for the browsed service.
type Announcement struct {
	Address string
	Name    string
	Service string

	// MAC is taken from the TXT record when the device advertises one,
	// otherwise identity.Unknown.
	MAC identity.MAC
}

// MDNSConfig selects what to browse and where.
type MDNSConfig struct {
	Service   string
	Domain    string
	Interface string
}

// MDNSScanner browses for TV announcements with zeroconf.
type MDNSScanner struct {
	config MDNSConfig
}

// NewMDNSScanner creates a scanner. Domain defaults to "local.".
func NewMDNSScanner(config MDNSConfig) *MDNSScanner {
	if config.Domain == "" {
		config.Domain = "local."
	}
	return &MDNSScanner{config: config}
}

// Browse sends an announcement query and streams one Announcement per
// IPv4 address answered. The channel closes when ctx ends.
func (s *MDNSScanner) Browse(ctx context.Context) (<-chan Announcement, error) {
	if s.config.Service == "" {
		return nil, fmt.Errorf("%w: no service type configured", ErrBrowseFailed)
	}

	out := make(chan Announcement)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	opts := s.browserOptions()

	go func() {
		defer close(out)
		seen := make(map[string]struct{})

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				for _, a := range entryToAnnouncements(entry, s.config.Service) {
					key := a.Name + "|" + a.Address
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					select {
					case out <- a:
					case <-ctx.Done():
						return
					}
				}
			case <-removed:
				// Departures are detected by the liveness recheck instead.
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, s.config.Service, s.config.Domain, entries, removed, opts...)
	}()

	return out, nil
}

func (s *MDNSScanner) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if s.config.Interface != "" {
		if iface, err := net.InterfaceByName(s.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func entryToAnnouncements(entry *zeroconf.ServiceEntry, service string) []Announcement {
	if entry == nil {
		return nil
	}
	return announcements(entry.Instance, entry.HostName, entry.AddrIPv4, entry.Text, service)
}

func announcements(instance, host string, ips []net.IP, txt []string, service string) []Announcement {
	name := instance
	if name == "" {
		name = strings.TrimSuffix(host, ".")
	}
	mac := macFromTXT(txt)

	out := make([]Announcement, 0, len(ips))
	for _, ip := range ips {
		out = append(out, Announcement{
			Address: ip.String(),
			Name:    name,
			Service: service,
			MAC:     mac,
		})
	}
	return out
}

// macFromTXT looks for the keys TVs use to advertise their hardware address.
func macFromTXT(txt []string) identity.MAC {
	for _, record := range txt {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "deviceid", "mac", "macaddress":
			if mac, err := identity.ParseMAC(value); err == nil {
				return mac
			}
		}
	}
	return identity.Unknown
}
