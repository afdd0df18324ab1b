// Package backoff holds the exponential delay shared by fetch retries and
// campaign send retries.
package backoff

import (
	"context"
	"time"
)

// Exponential returns base*2^attempt capped at limit. attempt is zero-based.
func Exponential(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if limit > 0 && d >= limit {
			break
		}
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepFunc is the hook components take so tests can record delays instead of
// waiting them out.
type SleepFunc func(ctx context.Context, d time.Duration) error
