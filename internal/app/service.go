// Package service assembles the scoring engine, its scheduler and the score
// publishers, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/okian/lanscore/internal/adapters/live"
	eventqueue "github.com/okian/lanscore/internal/adapters/mq/queue"
	workerpool "github.com/okian/lanscore/internal/adapters/mq/worker"
	"github.com/okian/lanscore/internal/adapters/pubsub"
	repository "github.com/okian/lanscore/internal/adapters/repository"
	"github.com/okian/lanscore/internal/config"
	"github.com/okian/lanscore/internal/domain/scoring"
	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/internal/reconcile"
	"github.com/okian/lanscore/internal/scheduler"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

// Service implements the API dependencies for the community scoring system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store     *repository.Store
	ownsStore bool
	engine    *reconcile.Engine
	loop      *scheduler.Loop
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	hub       *live.Hub
	redis     *pubsub.RedisPublisher
	sinks     []workerpool.Sink

	// Hooks
	now func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore uses an already opened store instead of opening one from the
// config. The caller keeps ownership and closes it.
func WithStore(store *repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock replaces the wall clock used for reconciliation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSinks registers extra publishers for new scores.
func WithSinks(sinks ...workerpool.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// New constructs a new Service from cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:    cfg,
		now:    time.Now,
		logger: nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens storage, starts the publishers and the reconciliation loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting community scoring service...")

	if s.store == nil {
		store, err := repository.New(ctx,
			repository.WithDriver(s.cfg.DBDriver),
			repository.WithDSN(s.cfg.DBDSN),
		)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	// Publishers
	s.hub = live.NewHub()
	go s.hub.Run(runCtx)
	sinks := append([]workerpool.Sink{s.hub}, s.sinks...)

	if s.cfg.RedisURL != "" {
		redis, err := pubsub.NewRedisPublisher(ctx, s.cfg.RedisURL, pubsub.WithChannel(s.cfg.RedisChannel))
		if err != nil {
			s.abortStart()
			return fmt.Errorf("connecting redis: %w", err)
		}
		s.redis = redis
		sinks = append(sinks, redis)
	}

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.NotifyQueueSize),
		eventqueue.WithComponent("notify_queue"),
	)
	s.pool = workerpool.NewPool(s.cfg.NotifyWorkerCount, s.queue, sinks)
	s.pool.Start(runCtx)

	// Engine and schedule
	s.engine = reconcile.New(s.store,
		reconcile.WithAggregator(scoring.NewAggregator(
			scoring.WithSlotWidth(s.cfg.SlotWidth()),
			scoring.WithThreshold(s.cfg.AwardThreshold),
		)),
		reconcile.WithNotifier(NewScoreFanout(s.queue, s.now)),
		reconcile.WithClock(s.now),
	)
	s.loop = scheduler.New(s.engine,
		scheduler.WithPollInterval(s.cfg.PollInterval),
		scheduler.WithSlotWidth(s.cfg.SlotWidth()),
		scheduler.WithClock(s.now),
	)
	if err := s.loop.Start(runCtx); err != nil {
		s.abortStart()
		return fmt.Errorf("starting scheduler: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "community scoring service started",
		logger.String("db_driver", s.store.Driver()),
		logger.Duration("slot_width", s.cfg.SlotWidth()),
		logger.Float64("award_threshold", s.cfg.AwardThreshold),
		logger.Int("workers", s.pool.Size()),
		logger.Bool("redis", s.redis != nil),
	)

	return nil
}

// abortStart releases what a failed Start has opened. Callers hold mu.
func (s *Service) abortStart() {
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.ownsStore && s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	s.pool, s.queue, s.hub = nil, nil, nil
}

// Stop waits for a running pass, drains queued score batches and releases
// every resource. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping community scoring service...")

	// No more passes, then no more batches
	s.loop.Stop()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}

	s.hub.Stop()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn(ctx, "closing redis", logger.Error(err))
		}
	}
	s.cancel()

	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing store", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "community scoring service stopped")
}

// Health reports whether the database answers.
func (s *Service) Health(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return ErrNotStarted
	}
	return store.Ping(ctx)
}

// Trigger runs a reconciliation pass now unless one is already running.
func (s *Service) Trigger(ctx context.Context) (reconcile.Result, error) {
	s.mu.RLock()
	loop := s.loop
	started := s.started
	s.mu.RUnlock()

	if !started {
		return reconcile.Result{}, ErrNotStarted
	}
	return loop.Trigger(ctx)
}

// Leaderboard returns the top users of a LAN by community points.
func (s *Service) Leaderboard(ctx context.Context, lanID int64, limit int) ([]types.Entry, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store == nil {
		return nil, ErrNotStarted
	}
	return store.Leaderboard(ctx, lanID, limit)
}

// LiveHandler serves the websocket stream of new scores.
func (s *Service) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		hub := s.hub
		s.mu.RUnlock()

		if hub == nil {
			http.Error(w, ErrNotStarted.Error(), http.StatusServiceUnavailable)
			return
		}
		hub.ServeHTTP(w, r)
	})
}

// IsBusy reports whether err means a pass was already running.
func IsBusy(err error) bool { return errors.Is(err, scheduler.ErrBusy) }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":          s.started,
		"slotWidthMinutes": s.cfg.SlotWidthMinutes,
		"awardThreshold":   s.cfg.AwardThreshold,
		"pollInterval":     s.cfg.PollInterval.String(),
		"queueSize":        s.cfg.NotifyQueueSize,
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	stats["goroutines"] = goroutines
	stats["heapBytes"] = mem.HeapAlloc
	metrics.UpdateSystemMemoryUsage(mem.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(goroutines)
	if mem.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(mem.PauseNs[(mem.NumGC+255)%256]) / float64(time.Millisecond))
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["workerCount"] = s.pool.Size()
		stats["liveClients"] = s.hub.ClientCount()
		stats["redis"] = s.redis != nil
		stats["scheduler"] = s.loop.Status()
		stats["dbDriver"] = s.store.Driver()

		// Update metrics
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}
