package pipeline

import (
	"context"
	"errors"
	"runtime"

	"github.com/okian/intentrank/internal/adapters/mq/queue"
	"github.com/okian/intentrank/internal/adapters/mq/worker"
)

// fanOut evaluates fn for every item on the worker pool and returns the
// results in input order. done[i] reports whether out[i] was computed.
//
// When ctx is cancelled no further items are submitted; results already
// computed stay valid and the context error is returned alongside them.
func fanOut[In, Out any](ctx context.Context, p *Pipeline, stage string, items []In, fn func(context.Context, In) (Out, error)) ([]Out, []bool, error) {
	out := make([]Out, len(items))
	done := make([]bool, len(items))
	if len(items) == 0 {
		return out, done, nil
	}

	q := queue.NewInMemoryQueue[int](queue.WithCapacity(p.queueSize))
	pool := worker.NewPool[int](p.poolSize(len(items)), q, worker.HandlerFunc[int](func(ctx context.Context, i int) error {
		v, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		// Each index is written by exactly one worker and read after Wait.
		out[i] = v
		done[i] = true
		return nil
	}), worker.WithName(stage), worker.WithLogger(p.logger.Named(stage)))
	pool.Start(ctx)

	var submitErr error
	for i := range items {
		if err := q.Put(ctx, i); err != nil {
			submitErr = err
			break
		}
	}
	_ = q.Close()

	err := pool.Wait()
	if cerr := ctx.Err(); cerr != nil {
		return out, done, cerr
	}
	return out, done, errors.Join(submitErr, err)
}

func (p *Pipeline) poolSize(items int) int {
	n := p.workers
	if n < 1 {
		n = runtime.NumCPU()
	}
	return min(n, items)
}
