package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity bounds the number of batches waiting for a worker. Batches
// beyond it are dropped.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithComponent sets the component label used for the queue's error metrics.
func WithComponent(name string) Option {
	return func(q *InMemoryQueue) {
		if name != "" {
			q.component = name
		}
	}
}
