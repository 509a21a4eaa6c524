package errors

import (
	"errors"
	"fmt"
)

// ScoutError is the structured error type for docscout.
// It carries enough context for logging and for the orchestrator to
// decide whether a path should be retried on the next run.
type ScoutError struct {
	// Code is the unique error code (e.g., "ERR_301_TRANSIENT_IO").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Remote, ...).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried on a later run.
	Retryable bool
}

// Error implements the error interface.
func (e *ScoutError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ScoutError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code,
// enabling errors.Is to work with ScoutError values.
func (e *ScoutError) Is(target error) bool {
	if t, ok := target.(*ScoutError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ScoutError) WithDetail(key, value string) *ScoutError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ScoutError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *ScoutError {
	return &ScoutError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ScoutError from an existing error.
// The error's message becomes the ScoutError message.
func Wrap(code string, err error) *ScoutError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CodeOf extracts the error code from an error chain.
// Returns ErrCodeInternal for errors that carry no code.
func CodeOf(err error) string {
	var se *ScoutError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether an error in the chain is marked retryable.
// Plain errors without a code are treated as retryable transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *ScoutError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}
