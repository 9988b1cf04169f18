// Package queue buffers score batches between the reconciliation engine and
// the publishing workers.
//
// Enqueue never blocks: a full or closed queue rejects the batch so that a
// slow subscriber can never hold up a reconciliation pass.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultComponent     = "queue"
)

// Batch is the payload type flowing through the queue.
type Batch = model.ScoreBatch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns false if the queue is full or closed and the batch was dropped.
	Enqueue(ctx context.Context, b Batch) bool

	// Dequeue returns a channel that will receive batches as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Batch

	// Len returns the current number of queued batches.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new batches can be enqueued and the dequeue channel will be closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches   chan Batch
	capacity  int
	component string
	mu        sync.RWMutex
	closed    bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:  defaultQueueCapacity,
		component: defaultComponent,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.batches = make(chan Batch, q.capacity)

	// Initialize metrics
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a batch to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool { //nolint:gocritic // hugeParam: Batch is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.component, "closed")
		return false
	}

	// Check if we're at capacity
	if len(q.batches) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.component, "capacity_exceeded")
		return false
	}

	select {
	case q.batches <- b:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.component, "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent(q.component, "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive batches as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Batch {
	// Wrap the channel to track dequeue metrics
	out := make(chan Batch)
	go func() {
		defer close(out)
		for b := range q.batches {
			select {
			case out <- b:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return q.observe()
}

// Close gracefully shuts down the queue. Batches already queued are still
// delivered to consumers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.batches)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() int {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}
