package repositories

import (
	"errors"
	"fmt"
)

// WallErrorCode enumerates why a wall refused a write.
type WallErrorCode string

const (
	// WallErrorNotFound indicates the wall does not exist.
	WallErrorNotFound WallErrorCode = "wall_not_found"
	// WallErrorInactive indicates the wall was deactivated or has expired.
	WallErrorInactive WallErrorCode = "wall_inactive"
	// WallErrorFull indicates the wall reached its memory cap.
	WallErrorFull WallErrorCode = "wall_full"
)

// WallError reports a capacity or state failure raised inside a wall transaction.
type WallError struct {
	Op      string
	Code    WallErrorCode
	WallID  string
	Message string
}

// Error implements the error interface.
func (e *WallError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// IsNotFound lets a missing wall satisfy RepositoryError checks.
func (e *WallError) IsNotFound() bool { return e != nil && e.Code == WallErrorNotFound }

// IsConflict reports the capacity and state failures.
func (e *WallError) IsConflict() bool {
	return e != nil && (e.Code == WallErrorFull || e.Code == WallErrorInactive)
}

// IsUnavailable is always false.
func (e *WallError) IsUnavailable() bool { return false }

// NewWallError constructs a typed wall error.
func NewWallError(code WallErrorCode, wallID, message string) *WallError {
	if message == "" {
		message = string(code)
	}
	return &WallError{Code: code, WallID: wallID, Message: message}
}

// WallErrorCodeOf extracts the code of a wrapped *WallError.
func WallErrorCodeOf(err error) (WallErrorCode, bool) {
	var wallErr *WallError
	if errors.As(err, &wallErr) {
		return wallErr.Code, true
	}
	return "", false
}
