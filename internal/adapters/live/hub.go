// Package live streams new community scores to websocket viewers.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
)

const (
	sinkName            = "live"
	defaultBufferSize   = 256
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxMessageSize      = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are dashboards on the LAN
	},
}

// client is one connected viewer.
type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// Hub fans score batches out to every connected viewer.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex

	bufferSize   int
	pingInterval time.Duration
	pongWait     time.Duration

	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	logger logger.Logger
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:      make(map[*client]bool),
		register:     make(chan *client),
		unregister:   make(chan *client),
		bufferSize:   defaultBufferSize,
		pingInterval: defaultPingInterval,
		pongWait:     2 * defaultPingInterval,
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		logger:       logger.Get().Named("live"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.broadcast = make(chan []byte, h.bufferSize)
	return h
}

// Name implements worker.Sink.
func (h *Hub) Name() string { return sinkName }

// Run is the hub main loop. It returns when ctx is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateLiveClients(n)
			h.logger.Info(ctx, "viewer connected", logger.String("remote_addr", c.remoteAddr), logger.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateLiveClients(n)
			h.logger.Info(ctx, "viewer disconnected", logger.String("remote_addr", c.remoteAddr), logger.Int("clients", n))

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow viewer
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn(ctx, "dropping slow viewer", logger.String("remote_addr", c.remoteAddr))
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.UpdateLiveClients(n)
		}
	}
}

// Stop ends Run and disconnects every viewer.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Stopped is closed once Run has returned.
func (h *Hub) Stopped() <-chan struct{} { return h.stopped }

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.UpdateLiveClients(0)
}

// Publish queues a batch for every connected viewer. It never waits for
// viewers; a full broadcast buffer returns ErrBroadcastFull.
func (h *Hub) Publish(ctx context.Context, b model.ScoreBatch) error { //nolint:gocritic // hugeParam: matches the Sink interface
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding batch %s: %w", b.PassID, err)
	}

	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBroadcastFull
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams batches to it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "live stream stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		metrics.RecordErrorByComponent("live", "upgrade")
		return
	}

	c := &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.bufferSize),
		remoteAddr: clientIP(r),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump consumes control frames until the viewer goes away.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug(context.Background(), "viewer read failed", logger.Error(err))
			}
			return
		}
	}
}

// writePump sends one text frame per batch and pings idle connections.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientIP extracts the viewer address, checking proxy headers first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, _ := strings.Cut(xff, ","); ip != "" {
			return strings.TrimSpace(ip)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
