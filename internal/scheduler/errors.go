package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrBusy     = errors.New("reconciliation pass already running")
	ErrStopped  = errors.New("scheduler stopped")
	ErrPanicked = errors.New("reconciliation pass panicked")
)
