// Package errors provides the error taxonomy shared by the context service.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnavailable   = errors.New("storage unavailable")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("concurrent modification")
	ErrAuthFailure   = errors.New("authentication failed")
)

// StoreError wraps a failure from the project record store with the
// operation and project it happened on.
type StoreError struct {
	Op        string
	ProjectID string
	Err       error
}

func (e *StoreError) Error() string {
	if e.ProjectID != "" {
		return fmt.Sprintf("store %s (project %s): %v", e.Op, e.ProjectID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Unavailable wraps a driver error so that callers can match it with
// errors.Is(err, ErrUnavailable) while keeping the cause.
func Unavailable(op, projectID string, cause error) error {
	return &StoreError{Op: op, ProjectID: projectID, Err: fmt.Errorf("%w: %v", ErrUnavailable, cause)}
}

// UnknownMetric returns an ErrUnknownMetric naming the offending metric.
func UnknownMetric(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// InvalidInput returns an ErrInvalidInput with a formatted reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsRetryable returns true if the caller may retry the operation as-is.
// Conflicts are not listed here: they need a fresh read first.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsConflict reports whether err is an optimistic-concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
