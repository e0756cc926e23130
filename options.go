package rawdec

import "github.com/gogpu/rawdec/internal/parallel"

// Option configures a decompressor during creation.
// Use functional options to customize how work items are dispatched.
//
// Example:
//
//	// Default: one worker per CPU
//	d, err := rawdec.NewPanasonicV5(img, bs, 12)
//
//	// Sequential decoding
//	d, err := rawdec.NewPanasonicV5(img, bs, 12, rawdec.WithWorkers(1))
type Option func(*options)

// options holds optional configuration for decompressor creation.
type options struct {
	workers  int
	executor Executor
}

// defaultOptions returns the default decompressor options.
func defaultOptions() options {
	return options{
		workers:  0,   // GOMAXPROCS
		executor: nil, // Will be a parallel.WorkerPool if nil
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithWorkers sets the number of work items decoded concurrently.
// Zero or a negative count means GOMAXPROCS. Ignored when WithExecutor is
// also given.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithExecutor sets the executor work items are dispatched to.
// Use this to share a pool between decoders or to run items on a
// caller-managed scheduler.
//
// Example:
//
//	pool := mypackage.NewScheduler()
//	d, err := rawdec.NewDNG(img, params, rawdec.WithExecutor(pool))
func WithExecutor(e Executor) Option {
	return func(o *options) {
		o.executor = e
	}
}

// resolveExecutor returns the configured executor, creating the default
// worker pool if none was injected.
func (o options) resolveExecutor() Executor {
	if o.executor != nil {
		return o.executor
	}
	return parallel.NewWorkerPool(o.workers)
}
