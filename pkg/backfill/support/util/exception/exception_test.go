package exception_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := exception.NewExecutionError("store", "statement failed", cause, true)

	assert.Equal(t, "[store] statement failed: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := exception.NewConfigurationError("plan", "invalid window", nil)
	assert.Equal(t, "[plan] invalid window", bare.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(exception.NewConfigurationError("m", "x", nil)))
	assert.Equal(t, exception.KindPolicy, exception.KindOf(exception.NewPolicyError("m", "x", nil)))
	assert.Equal(t, exception.KindPersistence, exception.KindOf(exception.NewPersistenceError("m", "x", nil)))

	// Foreign errors classify as execution, even when wrapped.
	assert.Equal(t, exception.KindExecution, exception.KindOf(errors.New("boom")))

	wrapped := exception.NewPolicyError("m", "outer", nil)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(errors.Join(errors.New("ctx"), wrapped)))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "retryable execution", err: exception.NewExecutionError("m", "x", nil, true), want: true},
		{name: "non-retryable execution", err: exception.NewExecutionError("m", "x", nil, false), want: false},
		{name: "persistence never retries", err: exception.NewPersistenceError("m", "x", nil), want: false},
		{name: "foreign timeout", err: errors.New("read tcp: i/o timeout"), want: true},
		{name: "foreign refused", err: errors.New("connection refused"), want: true},
		{name: "foreign permanent", err: errors.New("syntax error in statement"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exception.IsRetryable(tt.err))
		})
	}
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "bad window", exception.ExtractErrorMessage(exception.NewConfigurationError("plan", "bad window", errors.New("from after to"))))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
