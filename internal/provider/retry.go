package provider

import (
	"context"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// withRetry runs fn up to retryAttempts times, backing off exponentially
// between attempts. Only transient failures are retried; a permanent error
// returns immediately.
func withRetry(ctx context.Context, sleep func(time.Duration), fn func() error) error {
	if sleep == nil {
		sleep = time.Sleep
	}
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			sleep(retryBaseDelay << (attempt - 1))
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// classifyStatus decides whether an HTTP status is worth retrying.
func classifyStatus(status int) bool {
	return status == 429 || status >= 500
}
