// Package guard gates anonymous writes to a wall. It bounds how often a visitor may act within a
// trailing window, and rejects markup, names, and files that are unsafe to store or render.
package guard

import (
	"errors"
	"fmt"
)

// ErrRejected is matched by every *ValidationError via errors.Is.
var ErrRejected = errors.New("guard: rejected")

// ValidationError is the rejected half of a validation outcome. Reason is a short, user-facing
// message; Field names the offending input when there is one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports ErrRejected so callers can test for any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrRejected
}

func reject(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Outcome is the result of a validation that never fails partially.
type Outcome struct {
	Valid bool
	Err   *ValidationError
}

// Accepted returns the accepted outcome.
func Accepted() Outcome {
	return Outcome{Valid: true}
}

// Rejected wraps err as a rejected outcome.
func Rejected(err *ValidationError) Outcome {
	return Outcome{Valid: false, Err: err}
}

// Reason returns the rejection message, or "" when the outcome is accepted.
func (o Outcome) Reason() string {
	if o.Valid || o.Err == nil {
		return ""
	}
	return o.Err.Reason
}

// AsError returns nil for accepted outcomes.
func (o Outcome) AsError() error {
	if o.Valid || o.Err == nil {
		return nil
	}
	return o.Err
}
