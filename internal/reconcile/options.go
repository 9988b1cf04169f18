package reconcile

import (
	"time"

	"github.com/okian/lanscore/internal/domain/scoring"
	"github.com/okian/lanscore/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithAggregator sets the slot aggregator, and with it the slot width and
// award threshold.
func WithAggregator(a *scoring.Aggregator) Option {
	return func(e *Engine) {
		if a != nil {
			e.aggregator = a
		}
	}
}

// WithNotifier sets the receiver of the scores created by a pass.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock overrides the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
