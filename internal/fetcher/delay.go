package fetcher

import (
	"context"
	"time"
)

// DelayedFetcher wraps a Fetcher with a fixed pause after every request.
// Both notice APIs throttle clients that page without pausing, independent
// of the token-bucket rate.
type DelayedFetcher struct {
	inner Fetcher
	delay time.Duration
	sleep func(ctx context.Context, d time.Duration)
}

// NewDelayedFetcher wraps inner with a post-request delay.
func NewDelayedFetcher(inner Fetcher, delay time.Duration) *DelayedFetcher {
	return &DelayedFetcher{
		inner: inner,
		delay: delay,
		sleep: sleepCtx,
	}
}

// GetJSON fetches through the inner fetcher, then pauses. The pause applies
// on failure too, so error-retry loops upstream stay paced.
func (d *DelayedFetcher) GetJSON(ctx context.Context, url string, v any) error {
	err := d.inner.GetJSON(ctx, url, v)
	if d.delay > 0 {
		d.sleep(ctx, d.delay)
	}
	return err
}
