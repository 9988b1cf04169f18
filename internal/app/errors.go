package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoConfig   = errors.New("service config required")
)
