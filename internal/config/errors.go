package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. Every validation failure wraps
// ErrInvalidConfig; the narrower kinds below wrap it as well.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	ErrUnknownDriver    = fmt.Errorf("%w: unknown db_driver", ErrInvalidConfig)
	ErrUnknownLogFormat = fmt.Errorf("%w: unknown log_format", ErrInvalidConfig)
)
