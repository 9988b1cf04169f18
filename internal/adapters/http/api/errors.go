package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrLimitExceeded  = errors.New("limit exceeded")
	ErrUnavailable    = errors.New("service unavailable")
	ErrPassInProgress = errors.New("reconciliation pass in progress")
)

// NewKind reports a sentinel kind for an operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// Wrap annotates an upstream error with the failing operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
