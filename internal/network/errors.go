package network

import "errors"

var (
	// ErrBrowseFailed is returned when mDNS browsing cannot start.
	ErrBrowseFailed = errors.New("network: mdns browse failed")
)
