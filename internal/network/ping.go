package network

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	defaultProbeTimeout = 2 * time.Second
	protocolICMP        = 1
	maxReplySize        = 1500
)

var echoSeq atomic.Uint32

// ICMPProber answers "is anything at this address" with one echo request.
//
// It prefers an unprivileged datagram ICMP socket and falls back to a raw
// socket when that is not permitted.
type ICMPProber struct {
	Timeout time.Duration
}

// NewICMPProber creates a prober with the given per-probe timeout.
func NewICMPProber(timeout time.Duration) *ICMPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &ICMPProber{Timeout: timeout}
}

// ProbeReachable sends one echo request and waits for the matching reply.
// Every failure, including socket errors, reports false.
func (p *ICMPProber) ProbeReachable(ctx context.Context, address string) bool {
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return false
	}

	conn, privileged, err := listenICMP()
	if err != nil {
		return false
	}
	defer conn.Close()

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  int(echoSeq.Add(1) & 0xffff),
			Data: []byte("tvbridge"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return false
	}

	rb := make([]byte, maxReplySize)
	for {
		if ctx.Err() != nil {
			return false
		}
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return false
		}
		if !sameHost(peer, ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return true
		}
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	if conn, err := icmp.ListenPacket("udp4", "0.0.0.0"); err == nil {
		return conn, false, nil
	}
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	return conn, true, err
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	default:
		return false
	}
}
