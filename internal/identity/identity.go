package identity

import (
	"fmt"
	"net"
	"strings"
)

// MAC is a normalised hardware address: lower-case, colon separated.
type MAC string

// Unknown is returned when a hardware address cannot be resolved.
const Unknown MAC = "00:00:00:00:00:00"

// DeviceIDPrefix prefixes every externally visible device id.
const DeviceIDPrefix = "webos-"

// ParseMAC normalises any form net.ParseMAC accepts.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return Unknown, fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	if len(hw) != 6 {
		return Unknown, fmt.Errorf("%w: %q is not EUI-48", ErrInvalidMAC, s)
	}
	return MAC(hw.String()), nil
}

// IsUnknown reports whether m is the sentinel or empty.
func (m MAC) IsUnknown() bool {
	return m == "" || m == Unknown
}

// HardwareAddr converts m for use with packet builders.
func (m MAC) HardwareAddr() (net.HardwareAddr, error) {
	return net.ParseMAC(string(m))
}

// DeviceID derives the stable device id, e.g. "webos-aabbccddeeff".
func (m MAC) DeviceID() string {
	return DeviceIDPrefix + strings.ReplaceAll(string(m), ":", "")
}

// MACFromDeviceID reverses DeviceID.
func MACFromDeviceID(id string) (MAC, error) {
	hex, ok := strings.CutPrefix(id, DeviceIDPrefix)
	if !ok || len(hex) != 12 {
		return Unknown, fmt.Errorf("%w: device id %q", ErrInvalidMAC, id)
	}
	var b strings.Builder
	for i := 0; i < len(hex); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return ParseMAC(b.String())
}

// DeviceIdentity is one physical TV as currently known.
type DeviceIdentity struct {
	MAC     MAC
	Address string
	Name    string
}

// DeviceID returns the externally visible id for this identity.
func (d DeviceIdentity) DeviceID() string {
	return d.MAC.DeviceID()
}

func (d DeviceIdentity) String() string {
	return fmt.Sprintf("%s@%s", d.MAC, d.Address)
}
