package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
)

func batch(id string, users ...int64) Batch {
	b := Batch{PassID: id, SentAt: time.Now()}
	for _, u := range users {
		b.Scores = append(b.Scores, model.Score{UserID: u, Points: 5, Type: model.ScoreTypeCommunityGame})
	}
	return b
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	// Test enqueue
	if !q.Enqueue(ctx, batch("pass1", 1, 2)) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	// Test dequeue
	b := <-q.Dequeue(ctx)
	if b.PassID != "pass1" {
		t.Errorf("expected pass1, got %v", b.PassID)
	}
	if len(b.Scores) != 2 {
		t.Errorf("expected 2 scores, got %d", len(b.Scores))
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch("pass1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, batch("pass2", 1)) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, batch("pass3", 1)) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	numProducers := 10
	numBatches := 50

	done := make(chan bool, numProducers)
	for i := 0; i < numProducers; i++ {
		go func(id int) {
			for j := 0; j < numBatches; j++ {
				for !q.Enqueue(ctx, batch(fmt.Sprintf("pass%d_%d", id, j), int64(id))) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan string, numProducers*numBatches)
	for i := 0; i < 4; i++ {
		go func() {
			for b := range q.Dequeue(ctx) {
				consumed <- b.PassID
			}
		}()
	}

	for i := 0; i < numProducers; i++ {
		<-done
	}

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < numProducers*numBatches {
		select {
		case id := <-consumed:
			seen[id] = true
		case <-timeout:
			t.Fatalf("consumed %d of %d batches", len(seen), numProducers*numBatches)
		}
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch("pass1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, batch("pass2", 2)) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	// Try to enqueue after closing (should fail)
	if q.Enqueue(ctx, batch("pass3", 3)) {
		t.Error("expected enqueue to fail after closing")
	}

	// Queued batches drain before the channel closes
	var drained []string
	timeout := time.After(100 * time.Millisecond)
	ch := q.Dequeue(ctx)
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				if len(drained) != 2 || drained[0] != "pass1" || drained[1] != "pass2" {
					t.Errorf("expected pass1 and pass2 to drain, got %v", drained)
				}
				// Close again should not error
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, b.PassID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
