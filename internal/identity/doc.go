// Package identity models physical TVs by hardware address.
//
// A TV's MAC address is its stable key; its IP address is volatile and is
// tracked alongside. This package owns:
//   - MAC parsing and the all-zero Unknown sentinel
//   - the externally visible device id derived from a MAC
//   - KnownSet, the process-wide set of MACs with a pending or live session
//   - Store, the persistent pairing-key and last-address store
package identity
