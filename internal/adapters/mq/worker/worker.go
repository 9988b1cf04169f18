// Package worker publishes queued score batches to the registered sinks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lanscore/internal/adapters/mq/queue"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultPublishTimeout = 5 * time.Second
	metricsUpdateInterval = 5 * time.Second
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Batch abstracts what workers read off the queue.
type Batch = queue.Batch

// Sink receives score batches, for example live viewers or a message bus.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string
	// Publish delivers one batch.
	Publish(ctx context.Context, b Batch) error
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Batch
}

// Worker publishes batches using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for publishing batches.
type InMemoryWorker struct {
	queue Queue
	sinks []Sink
	name  string

	// Configuration
	publishTimeout time.Duration
	processed      *atomic.Int64

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:          q,
		sinks:          sinks,
		name:           "worker", // default name
		publishTimeout: defaultPublishTimeout,
		processed:      new(atomic.Int64),
		shutdown:       make(chan struct{}),
		done:           make(chan struct{}),
		logger:         logger.Get().Named("worker"), // will be updated by options
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-batches:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.publish(ctx, b); err != nil {
				w.logger.Error(ctx, "error publishing batch",
					logger.String("pass_id", b.PassID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// publish hands one batch to every sink. A failing sink does not stop the
// others from receiving the batch.
func (w *InMemoryWorker) publish(ctx context.Context, b Batch) error { //nolint:gocritic // hugeParam: Batch is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		w.processed.Add(1)
	}()

	var errs []error
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
		err := sink.Publish(sinkCtx, b)
		cancel()
		if err != nil {
			metrics.RecordNotificationError(sink.Name())
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "publish_error")
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
			continue
		}
		metrics.RecordNotificationPublished(sink.Name())
	}
	return errors.Join(errs...)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// Metrics tracking
	processed         atomic.Int64
	lastProcessedTime time.Time

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool publishing to sinks.
func NewPool(workerCount int, q Queue, sinks []Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			q,
			sinks,
			WithName("worker-"+strconv.Itoa(i)),
			withCounter(&pool.processed),
		)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerIdleCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of batches handled since the last metrics refresh.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	// Start metrics updater
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that updates worker metrics.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

// updateMetrics updates worker-related metrics.
func (p *Pool) updateMetrics() {
	now := time.Now()
	timeDiff := now.Sub(p.lastProcessedTime).Seconds()
	if timeDiff > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(p.processed.Swap(0)) / timeDiff)
	}
	p.lastProcessedTime = now
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	for _, w := range p.workers {
		w.shutdownOnce.Do(func() { close(w.shutdown) })
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue and lets the workers drain what is left before
// stopping them.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new batches
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	p.Stop()
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
