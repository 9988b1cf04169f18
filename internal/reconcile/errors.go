package reconcile

import "errors"

// Sentinel kinds for reconciliation errors.
var (
	ErrNoRepository = errors.New("reconcile: repository is required")
)
