// Package parallel provides the parallel-map primitives used inside a
// single fit or predict call. No goroutine started here outlives the call
// that spawned it.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Parallelize divides the specified total number (items) according to the
// number of CPU cores, and executes the specified function (fn) in parallel
// for each range (start, end).
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// Ceiling division so every item is covered.
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold parallelizes only when the number of items
// exceeds the threshold; below it the work runs sequentially.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEachIndexed runs fn(i) for every i in [0, items) on a bounded worker
// pool and stops early on the first error or context cancellation.
//
// Units must write their results into pre-allocated slots keyed by index,
// so the reduction order is independent of scheduling. A cancelled context
// surfaces as a Cancelled error for op.
func ForEachIndexed(ctx context.Context, op string, items int, fn func(i int) error) error {
	if items == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := 0; i < items; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(i)
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errors.NewCancelledError(op)
		}
		return err
	}

	// The parent context may be cancelled after all units finished; the
	// all-or-nothing contract still requires reporting it.
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(op)
	}
	return nil
}

// CheckCancel reports cooperative cancellation between units of sequential
// work (epochs, Lloyd iterations).
func CheckCancel(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return errors.NewCancelledError(op)
	default:
		return nil
	}
}
