package internal

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping between tries with
// exponential backoff starting at baseDelay. The first nil error wins.
// A non-positive attempts value means a single try with no retry. The
// last error is returned when every attempt fails or the context ends.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = fn(); err == nil {
			return nil
		}
	}

	return err
}
