package network

import (
	"bytes"
	"fmt"
	"net"

	"github.com/nerrad567/gray-logic-tvbridge/internal/identity"
)

// DefaultWakeTarget is the limited broadcast address on the discard port.
const DefaultWakeTarget = "255.255.255.255:9"

const (
	magicHeaderLen = 6
	magicRepeat    = 16
)

// WakeSender broadcasts Wake-on-LAN magic packets.
type WakeSender struct {
	Target string
}

// NewWakeSender sends to target, or DefaultWakeTarget when empty.
func NewWakeSender(target string) *WakeSender {
	if target == "" {
		target = DefaultWakeTarget
	}
	return &WakeSender{Target: target}
}

// SendWake transmits one magic packet for mac.
func (w *WakeSender) SendWake(mac identity.MAC) error {
	packet, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp4", w.Target)
	if err != nil {
		return fmt.Errorf("resolving wake target %q: %w", w.Target, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("opening wake socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("sending wake packet: %w", err)
	}
	return nil
}

// MagicPacket builds six 0xFF bytes followed by sixteen copies of mac.
func MagicPacket(mac identity.MAC) ([]byte, error) {
	if mac.IsUnknown() {
		return nil, fmt.Errorf("%w: cannot wake unknown mac", identity.ErrInvalidMAC)
	}
	hw, err := mac.HardwareAddr()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidMAC, err)
	}

	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0xff}, magicHeaderLen))
	for range magicRepeat {
		buf.Write(hw)
	}
	return buf.Bytes(), nil
}
