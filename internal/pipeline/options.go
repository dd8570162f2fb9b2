package pipeline

import (
	"github.com/okian/intentrank/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of per-user workers. Values below one use
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithQueueSize sets the capacity of the per-user job queue.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}
