package scraper

import (
	"context"
	"math/rand"
	"time"
)

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

// uniformFunc returns a duration in [lo, hi].
type uniformFunc func(lo, hi time.Duration) time.Duration

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}
