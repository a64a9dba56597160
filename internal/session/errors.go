package session

import "errors"

var (
	// ErrUnknownMAC is returned when connecting an identity whose hardware
	// address could not be resolved.
	ErrUnknownMAC = errors.New("session: unknown mac address")

	// ErrInitFailed wraps an Attacher failure during Connect.
	ErrInitFailed = errors.New("session: initialisation failed")

	// ErrTornDown is returned by Connect when Disconnect won the race.
	ErrTornDown = errors.New("session: torn down while connecting")
)
