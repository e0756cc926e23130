package rawdec

import (
	"context"
	"fmt"
)

// Executor runs the work items of one decode call.
//
// ExecuteAll must call task for every index in [0, n) unless a task fails
// or ctx is canceled, in which case it should stop starting new tasks.
// It must not return before every started task has returned, and it
// returns the first task error, or the context error if ctx stopped the
// batch. Tasks may run concurrently and in any order.
//
// *parallel.WorkerPool from the default configuration satisfies Executor.
type Executor interface {
	ExecuteAll(ctx context.Context, n int, task func(ctx context.Context, i int) error) error
}

// runItems dispatches n work items of the given kind to exec.
// Failures, including panics in decode, come back as *ItemError.
func runItems(ctx context.Context, exec Executor, kind string, n int, decode func(i int) error) error {
	return exec.ExecuteAll(ctx, n, func(_ context.Context, i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &ItemError{Kind: kind, Index: i, Err: fmt.Errorf("%w: %v", ErrCorrupt, r)}
				Logger().Debug("rawdec: work item panicked", "kind", kind, "index", i, "panic", r)
			}
		}()
		if err := decode(i); err != nil {
			Logger().Debug("rawdec: work item failed", "kind", kind, "index", i, "err", err)
			return &ItemError{Kind: kind, Index: i, Err: err}
		}
		return nil
	})
}
