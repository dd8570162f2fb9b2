// Package queue provides a bounded in-memory job queue.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/intentrank/pkg/metrics"
)

const defaultCapacity = 1024

// Queue provides enqueue and channel-based dequeue semantics for jobs of type T.
type Queue[T any] interface {
	// Enqueue adds a job without blocking. Returns false if the queue is full
	// or closed.
	Enqueue(ctx context.Context, job T) bool
	// Put adds a job, waiting for room until ctx is done.
	Put(ctx context.Context, job T) error
	// Dequeue returns the channel jobs are delivered on. It is closed once the
	// queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T
	// Len returns the number of queued jobs.
	Len(ctx context.Context) int
	// Close stops accepting jobs.
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue[T any] struct {
	jobs     chan T
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &InMemoryQueue[T]{
		jobs:     make(chan T, cfg.capacity),
		capacity: cfg.capacity,
	}
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, job T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Put implements Queue.
func (q *InMemoryQueue[T]) Put(ctx context.Context, job T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("put: %w", ctx.Err())
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue[T]) Dequeue(_ context.Context) <-chan T {
	return q.jobs
}

// Len implements Queue.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	return n
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue[T]) Capacity() int { return q.capacity }

// Close implements Queue. It is safe to call more than once.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
