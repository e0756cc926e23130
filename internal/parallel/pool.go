// Package parallel provides the bounded worker pool that rawdec decompressors
// dispatch their work items to.
//
// Work items are identified by index. Each item writes to its own region of
// the output, so the pool does no locking on behalf of the tasks; it only
// bounds concurrency, records the first failure and stops handing out
// further items once that failure is observed.
package parallel

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task decodes work item i.
type Task = func(ctx context.Context, i int) error

// WorkerPool runs batches of independent tasks on at most Workers
// goroutines at a time.
//
// Thread safety: WorkerPool is safe for concurrent use; concurrent batches
// are bounded independently.
type WorkerPool struct {
	workers int
}

// NewWorkerPool creates a pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{workers: workers}
}

// Workers returns the maximum number of tasks run concurrently.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// ExecuteAll runs task for every index in [0, n) and waits for them.
//
// The first task error cancels the batch: tasks that have not started yet
// are skipped without calling task, tasks already running finish normally,
// and the first error is returned once all of them have returned. If ctx is
// canceled before every task ran, ExecuteAll returns the context error.
// Tasks are started in index order but may complete in any order.
func (p *WorkerPool) ExecuteAll(ctx context.Context, n int, task Task) error {
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.workers, n))

	var skipped atomic.Int64
	for i := range n {
		if gctx.Err() != nil {
			skipped.Add(int64(n - i))
			break
		}
		g.Go(func() error {
			// The slot may have been freed by the failing task itself.
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			return task(gctx, i)
		})
	}

	err := g.Wait()
	if err == nil && skipped.Load() > 0 {
		err = ctx.Err()
	}

	if err != nil {
		slogger().Debug("parallel: batch aborted",
			"tasks", n, "skipped", skipped.Load(), "workers", p.workers, "err", err)
	} else {
		slogger().Debug("parallel: batch done", "tasks", n, "workers", p.workers)
	}
	return err
}
