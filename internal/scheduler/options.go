package scheduler

import (
	"time"

	"github.com/okian/lanscore/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithPollInterval sets how often the loop checks for a crossed boundary.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithSlotWidth sets the grid whose boundaries trigger passes.
func WithSlotWidth(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.width = d
		}
	}
}

// WithClock overrides the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger for the loop.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}
