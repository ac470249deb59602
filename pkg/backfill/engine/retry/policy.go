package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

// RetryPolicy decides whether a failed chunk attempt is retried and how long
// to back off before the next attempt.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the waiting time before the next attempt.
	// attempt is the number of attempts already made (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts per chunk.
	GetMaxAttempts() int
}

// NewExponentialRetryPolicy creates a RetryPolicy with exponential backoff:
// the interval doubles with every attempt (initialInterval * 2^(attempt-1)).
func NewExponentialRetryPolicy(maxAttempts int, initialInterval time.Duration) RetryPolicy {
	return &exponentialRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
	}
}

type exponentialRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
}

// GetMaxAttempts returns the maximum number of attempts.
func (p *exponentialRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry determines if an error is retryable.
// Only execution errors are retried: configuration and policy errors are
// stable across attempts, persistence errors abort the chunk by design, and
// context cancellation means the run is being stopped.
func (p *exponentialRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return exception.KindOf(err) == exception.KindExecution
}

// GetBackoffInterval returns the backoff interval for the given attempt number.
func (p *exponentialRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.initialInterval * time.Duration(1<<uint(attempt-1))
}

// Verify interfaces
var _ RetryPolicy = (*exponentialRetryPolicy)(nil)
