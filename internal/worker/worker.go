// Package worker runs CPU-bound work off the caller's goroutine so it can
// be abandoned on cancellation or timeout.
package worker

import (
	"context"
	"time"
)

type result[T any] struct {
	val T
	err error
}

// Run executes fn on its own goroutine and waits for it, for ctx to be
// done, or for timeout to elapse, whichever comes first. A zero timeout
// waits on ctx alone. When Run gives up, fn keeps running to completion
// and its result is discarded.
func Run[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
