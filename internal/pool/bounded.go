// Package pool provides the shared concurrency primitives: a bounded
// parallel map with ordered results and fail-fast, and a winner-takes-all
// race. Cancellation is a reported outcome, never a raised one.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ShayCichocki/ensemble/internal/logx"
)

// MapOutcome is the result of a MapBounded call.
type MapOutcome[R any] struct {
	// Results holds one entry per input item, in input order. Entries for
	// items never started remain the zero value; check Filled.
	Results []R
	// Filled marks which Results entries were actually produced.
	Filled []bool
	// Aborted is set when external cancellation stopped the map early.
	Aborted bool
}

// MapBounded applies fn to every item with at most `concurrency` workers,
// writing each result at the item's original index.
//
// A non-positive or non-finite concurrency means one worker per item; the
// effective limit is always between 1 and len(items). On the first
// non-cancellation error from fn the map aborts the remaining work and
// returns that error without waiting for idle workers. When ctx is
// cancelled externally the partial results are returned with Aborted set
// and no error.
func MapBounded[T, R any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T, int) (R, error)) (MapOutcome[R], error) {
	if len(items) == 0 {
		return MapOutcome[R]{Results: []R{}, Filled: []bool{}}, nil
	}

	limit := concurrency
	if limit <= 0 {
		limit = len(items)
	}
	if limit > len(items) {
		limit = len(items)
	}

	inner, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	results := make([]R, len(items))
	filled := make([]bool, len(items))

	var next atomic.Int64
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(next.Add(1)) - 1
				if idx >= len(items) {
					return
				}
				if inner.Err() != nil {
					// Stop claiming new items once the map is aborted.
					return
				}

				r, err := fn(inner, items[idx], idx)
				if err != nil {
					if isCancellation(err) || inner.Err() != nil {
						// The abort (external or internal) wins; any error
						// it induced is swallowed.
						return
					}
					select {
					case errCh <- err:
					default:
					}
					abort(err)
					return
				}
				results[idx] = r
				filled[idx] = true
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-errCh:
		// Fail fast: the caller gets the first worker error immediately.
		logx.Debugf("[pool] bounded map failed fast: %v", err)
		return MapOutcome[R]{}, err
	case <-done:
		if ctx.Err() != nil {
			return MapOutcome[R]{Results: results, Filled: filled, Aborted: true}, nil
		}
		select {
		case err := <-errCh:
			return MapOutcome[R]{}, err
		default:
		}
		return MapOutcome[R]{Results: results, Filled: filled}, nil
	}
}

// isCancellation reports whether err is a context cancellation error.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
