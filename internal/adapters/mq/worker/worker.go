// Package worker runs a fixed-size pool of workers over a job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/intentrank/pkg/logger"
	"github.com/okian/intentrank/pkg/metrics"
)

// Handler processes one job.
type Handler[T any] interface {
	Handle(ctx context.Context, job T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, job T) error

// Handle implements Handler.
func (f HandlerFunc[T]) Handle(ctx context.Context, job T) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string
	logger  logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	mu   sync.Mutex
	errs []error
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker[T any](q Queue[T], h Handler[T], opts ...Option) *InMemoryWorker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Current().Named("worker")
	}
	return &InMemoryWorker[T]{
		queue:    q,
		handler:  h,
		name:     s.name,
		logger:   s.logger.With(logger.String("worker", s.name)),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the worker name.
func (w *InMemoryWorker[T]) Name() string { return w.name }

// Run starts the worker loop.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.process(ctx, job)
		}
	}
}

func (w *InMemoryWorker[T]) process(ctx context.Context, job T) {
	start := time.Now()
	err := w.handler.Handle(ctx, job)
	metrics.RecordWorkerJob(time.Since(start).Seconds())
	if err == nil {
		return
	}
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", "handler_error")
	w.logger.Error(ctx, "job failed", logger.Error(err))

	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

// Err returns the joined errors of every failed job so far.
func (w *InMemoryWorker[T]) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.errs...)
}

// Done is closed when Run returns.
func (w *InMemoryWorker[T]) Done() <-chan struct{} { return w.done }

// Shutdown implements Worker.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages a fixed number of workers sharing one queue.
type Pool[T any] struct {
	workers []*InMemoryWorker[T]
	queue   Queue[T]
	logger  logger.Logger
	started sync.Once
}

// NewPool creates a pool of workerCount workers. A count below one uses
// runtime.NumCPU().
func NewPool[T any](workerCount int, q Queue[T], h Handler[T], opts ...Option) *Pool[T] {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Current().Named("worker-pool")
	}

	p := &Pool[T]{
		workers: make([]*InMemoryWorker[T], workerCount),
		queue:   q,
		logger:  s.logger,
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, h,
			WithName(s.name+"-"+strconv.Itoa(i)),
			WithLogger(s.logger),
		)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return len(p.workers) }

// Start launches every worker. Calling it again is a no-op.
func (p *Pool[T]) Start(ctx context.Context) {
	p.started.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		p.logger.Debug(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
	})
}

// Wait blocks until every worker has returned and reports the joined job
// errors. Workers return once the queue is closed and drained, or ctx passed
// to Start is done.
func (p *Pool[T]) Wait() error {
	errs := make([]error, 0, len(p.workers))
	for _, w := range p.workers {
		<-w.done
		if err := w.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown closes the queue when it supports it and stops the workers,
// waiting until ctx is done.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
		}
	}
	return errors.Join(errs...)
}
