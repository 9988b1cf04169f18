package worker

import (
	"sync/atomic"
	"time"

	"github.com/okian/lanscore/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithPublishTimeout bounds a single sink publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.publishTimeout = d
		}
	}
}

func withCounter(c *atomic.Int64) Option {
	return func(w *InMemoryWorker) {
		if c != nil {
			w.processed = c
		}
	}
}
