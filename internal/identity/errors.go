package identity

import "errors"

var (
	// ErrInvalidMAC is returned when a string is not a usable hardware address.
	ErrInvalidMAC = errors.New("identity: invalid mac address")

	// ErrAlreadyKnown is returned by KnownSet.Reserve when the MAC already
	// has a pending or live session.
	ErrAlreadyKnown = errors.New("identity: mac already known")
)
