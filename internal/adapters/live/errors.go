package live

import "errors"

var (
	// ErrHubClosed is returned when publishing to a hub that has stopped.
	ErrHubClosed = errors.New("live hub closed")
	// ErrBroadcastFull is returned when the broadcast buffer cannot take another batch.
	ErrBroadcastFull = errors.New("live broadcast buffer full")
)
