package live

import (
	"time"

	"github.com/okian/lanscore/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBufferSize sets the per-client and broadcast buffer size.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
			h.pongWait = d * 2
		}
	}
}
