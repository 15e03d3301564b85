package fetcher

import (
	"context"
	"math/rand"
	"time"
)

// withRetry runs fn with bounded retries and doubling backoff. retryable
// decides which errors earn another attempt; anything else returns
// immediately. Attempts are strictly sequential and each backoff carries
// up to 50% jitter so workers hitting the same endpoint do not retry in
// lockstep.
func withRetry(ctx context.Context, budget int, baseDelay time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if budget < 0 {
		budget = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= budget || !retryable(err) {
			return err
		}

		sleep := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
