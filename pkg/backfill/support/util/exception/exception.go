// Package exception provides the error types and error handling utilities for refill.
// It standardizes errors raised during backfill planning and execution, classifying
// them into the kinds the command surface and the retry logic act on.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorKind classifies a BackfillError.
//
// The kinds map directly onto user-visible behavior: configuration and policy
// errors fail fast before any persistence or execution and exit with code 2;
// execution errors are retried per chunk and never abort the run as a whole;
// persistence errors are fatal to the in-flight chunk attempt because
// proceeding with unpersisted state would break the crash-safety invariant.
type ErrorKind string

const (
	// KindConfiguration marks malformed input: invalid window, chunk size,
	// missing time column, unparseable target.
	KindConfiguration ErrorKind = "configuration"
	// KindPolicy marks a precondition violation: overlapping run, missing
	// dry-run, disabled safety override. Reported distinctly from
	// configuration errors so tooling can tell "you did something unsafe"
	// from "your input was malformed".
	KindPolicy ErrorKind = "policy"
	// KindExecution marks a single chunk's statement failing against the store.
	KindExecution ErrorKind = "execution"
	// KindPersistence marks a checkpoint or event-log write failure.
	KindPersistence ErrorKind = "persistence"
)

// BackfillError is the error type raised by refill components.
// It holds the module where the error occurred, a message, the wrapped original
// error, its kind, and a flag indicating whether it is retryable.
type BackfillError struct {
	// Module indicates the component where the error occurred (e.g., "plan", "executor", "repository").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// Kind classifies the error per the taxonomy above.
	Kind ErrorKind
	// isRetryable indicates whether this error is retryable at the chunk level.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBackfillError creates a new BackfillError instance.
func NewBackfillError(module, message string, originalErr error, kind ErrorKind, isRetryable bool) *BackfillError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BackfillError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        kind,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// NewConfigurationError creates a configuration-kind BackfillError. Never retryable.
func NewConfigurationError(module, message string, originalErr error) *BackfillError {
	return NewBackfillError(module, message, originalErr, KindConfiguration, false)
}

// NewPolicyError creates a policy-kind BackfillError. Never retryable.
func NewPolicyError(module, message string, originalErr error) *BackfillError {
	return NewBackfillError(module, message, originalErr, KindPolicy, false)
}

// NewExecutionError creates an execution-kind BackfillError.
func NewExecutionError(module, message string, originalErr error, isRetryable bool) *BackfillError {
	return NewBackfillError(module, message, originalErr, KindExecution, isRetryable)
}

// NewPersistenceError creates a persistence-kind BackfillError.
// Persistence failures abort the in-flight chunk attempt and are never retried in place.
func NewPersistenceError(module, message string, originalErr error) *BackfillError {
	return NewBackfillError(module, message, originalErr, KindPersistence, false)
}

// Error implements the error interface.
func (e *BackfillError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BackfillError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BackfillError) IsRetryable() bool {
	return e.isRetryable
}

// KindOf returns the ErrorKind of err. Errors that are not BackfillError
// (directly or via wrapping) are classified as execution errors, the only
// kind that can originate outside refill's own components.
func KindOf(err error) ErrorKind {
	var be *BackfillError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindExecution
}

// IsRetryable determines if an error may be retried at the chunk level.
// The BackfillError flag takes precedence; for foreign errors a small set of
// transient patterns (timeouts, refused connections, dropped streams) is recognized.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var be *BackfillError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF")
}

// ExtractErrorMessage extracts the error message string from an error.
// For BackfillError it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BackfillError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
