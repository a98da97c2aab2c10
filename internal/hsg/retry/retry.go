// Package retry provides a small retry-with-backoff helper for Transient
// failures, generalizing the inline retry loop used by this codebase's
// Postgres-backed SEFII engine into a reusable primitive.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Do invokes fn up to attempts times, sleeping base*(i+1) plus jitter
// between attempts, and returns the last error if every attempt fails.
// It aborts early if ctx is cancelled.
func Do(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(base)))
		delay := base*time.Duration(i+1) + jitter
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
