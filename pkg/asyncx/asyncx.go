package asyncx

import (
	"context"
	"sync"
	"time"
)

// ─── Settle ──────────────────────────────────────────────────────────────────

// Result holds the outcome of one settled call.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the result carries no error.
func (r Result[T]) OK() bool { return r.Err == nil }

// AllSettled runs fns concurrently and waits for all of them. It never
// short-circuits: results[i] is the outcome of fns[i].
func AllSettled[T any](ctx context.Context, fns ...func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i, fn := range fns {
		go func() {
			defer wg.Done()
			v, err := fn(ctx)
			results[i] = Result[T]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// ─── Retry ────────────────────────────────────────────────────────────────────

// RetryWithBackoff calls fn up to attempts times, sleeping initialDelay
// before the second call and doubling the sleep after each failure. It
// returns the last error when every attempt fails, or ctx.Err() once ctx is
// done.
func RetryWithBackoff[T any](
	ctx context.Context,
	attempts int,
	initialDelay time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	var (
		zero  T
		err   error
		delay = initialDelay
		n     = max(attempts, 1)
	)
	for i := range n {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		var val T
		if val, err = fn(ctx); err == nil {
			return val, nil
		}

		if i == n-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
			delay *= 2
		}
	}
	return zero, err
}

// ─── Timeout ──────────────────────────────────────────────────────────────────

// WithTimeout runs fn under a deadline of d and returns
// context.DeadlineExceeded when fn has not returned by then. fn keeps
// running in the background until it notices its context is done.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()

	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
