package downloader

import (
	"context"
	"fmt"
)

// Retry calls fn up to attempts times (attempt numbers start at 1) and
// returns the first success. between runs before every attempt after the
// first; an error from it, or a cancelled ctx, stops retrying.
func Retry[T any](ctx context.Context, attempts int, fn func(ctx context.Context, attempt int) (T, error), between func(ctx context.Context, attempt int) error) (T, error) {
	var (
		zero    T
		lastErr error
	)
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && between != nil {
			if err := between(ctx, attempt); err != nil {
				return zero, err
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
