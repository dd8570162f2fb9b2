package queue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue[string](WithCapacity(2))
	ctx := context.Background()

	if got := q.Len(ctx); got != 0 {
		t.Fatalf("expected empty queue, got len %d", got)
	}
	if got := q.Capacity(); got != 2 {
		t.Fatalf("expected capacity 2, got %d", got)
	}

	if !q.Enqueue(ctx, "job-1") {
		t.Fatal("enqueue should succeed")
	}
	if got := q.Len(ctx); got != 1 {
		t.Fatalf("expected len 1, got %d", got)
	}

	if got := <-q.Dequeue(ctx); got != "job-1" {
		t.Fatalf("expected job-1, got %q", got)
	}
	if got := q.Len(ctx); got != 0 {
		t.Fatalf("expected len 0 after dequeue, got %d", got)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, 1) || !q.Enqueue(ctx, 2) {
		t.Fatal("enqueue should succeed below capacity")
	}
	if q.Enqueue(ctx, 3) {
		t.Fatal("enqueue should fail when full")
	}
	if got := q.Len(ctx); got != 2 {
		t.Fatalf("expected len 2, got %d", got)
	}
}

func TestInMemoryQueue_DefaultCapacity(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(0))
	if got := q.Capacity(); got != defaultCapacity {
		t.Fatalf("expected default capacity %d, got %d", defaultCapacity, got)
	}
}

func TestInMemoryQueue_PutWaitsForRoom(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(1))
	ctx := context.Background()
	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("put: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, 2) }()

	select {
	case <-done:
		t.Fatal("put should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	if got := <-q.Dequeue(ctx); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("blocked put: %v", err)
	}
	if got := <-q.Dequeue(ctx); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestInMemoryQueue_PutHonorsContext(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(1))
	if err := q.Put(context.Background(), 1); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(4))
	ctx := context.Background()
	if !q.Enqueue(ctx, 7) {
		t.Fatal("enqueue should succeed")
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Fatal("queue should report closed")
	}

	if q.Enqueue(ctx, 8) {
		t.Fatal("enqueue after close should fail")
	}
	if err := q.Put(ctx, 9); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	var drained []int
	for v := range q.Dequeue(ctx) {
		drained = append(drained, v)
	}
	if !reflect.DeepEqual(drained, []int{7}) {
		t.Fatalf("expected [7] drained, got %v", drained)
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(8))
	ctx := context.Background()

	var producers sync.WaitGroup
	for p := 0; p < 10; p++ {
		producers.Add(1)
		go func(base int) {
			defer producers.Done()
			for i := 0; i < 100; i++ {
				_ = q.Put(ctx, base*100+i)
			}
		}(p)
	}
	go func() {
		producers.Wait()
		_ = q.Close()
	}()

	seen := make(map[int]bool)
	for v := range q.Dequeue(ctx) {
		seen[v] = true
	}
	if len(seen) != 1000 {
		t.Fatalf("expected 1000 distinct items, got %d", len(seen))
	}
}
