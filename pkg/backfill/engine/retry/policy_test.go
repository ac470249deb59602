// Package retry_test provides unit tests for the exponential retry policy.
package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/refill/pkg/backfill/engine/retry"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

func TestGetBackoffIntervalDoubles(t *testing.T) {
	policy := retry.NewExponentialRetryPolicy(5, time.Second)

	assert.Equal(t, time.Second, policy.GetBackoffInterval(1))
	assert.Equal(t, 2*time.Second, policy.GetBackoffInterval(2))
	assert.Equal(t, 4*time.Second, policy.GetBackoffInterval(3))
	assert.Equal(t, 8*time.Second, policy.GetBackoffInterval(4))

	assert.Equal(t, time.Second, policy.GetBackoffInterval(0), "attempts below one clamp to the initial interval")
	assert.Equal(t, 5, policy.GetMaxAttempts())
}

func TestShouldRetryByErrorKind(t *testing.T) {
	policy := retry.NewExponentialRetryPolicy(3, time.Millisecond)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "execution error", err: exception.NewExecutionError("store", "statement failed", errors.New("timeout"), true), want: true},
		{name: "configuration error", err: exception.NewConfigurationError("plan", "bad window", nil), want: false},
		{name: "policy error", err: exception.NewPolicyError("policy", "overlap", nil), want: false},
		{name: "persistence error", err: exception.NewPersistenceError("repo", "write failed", errors.New("disk full")), want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "bare error counts as execution", err: errors.New("connection refused"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ShouldRetry(tt.err))
		})
	}
}

func TestWrappedCancellationIsNotRetried(t *testing.T) {
	policy := retry.NewExponentialRetryPolicy(3, time.Millisecond)
	wrapped := exception.NewExecutionError("store", "interrupted", context.Canceled, true)
	assert.False(t, policy.ShouldRetry(wrapped))
}
