package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidLimit      = errors.New("invalid leaderboard limit")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
