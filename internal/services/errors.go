package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

var (
	// ErrInvalidInput indicates the request failed validation. The wrapped *guard.ValidationError
	// names the field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWallNotFound indicates the wall does not exist.
	ErrWallNotFound = errors.New("wall not found")
	// ErrWallInactive indicates the wall was deactivated or has expired.
	ErrWallInactive = errors.New("wall is no longer active")
	// ErrWallFull indicates the wall reached its memory cap.
	ErrWallFull = errors.New("wall is full")
	// ErrMemoryNotFound indicates the memory does not exist.
	ErrMemoryNotFound = errors.New("memory not found")
	// ErrRateLimited indicates the visitor exceeded an action window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrForbidden indicates the actor may not touch the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates a backing service is temporarily unreachable.
	ErrUnavailable = errors.New("service unavailable")
)

// RateLimitError carries the limiter decision behind an ErrRateLimited failure.
type RateLimitError struct {
	Action   string
	Message  string
	Decision guard.Decision
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Action)
}

// Is matches ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfter reports when the oldest entry leaves the window.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Decision.RetryAfter }

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// mapRepositoryError converts persistence failures into service sentinels. notFound is used for
// a plain missing document.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if code, ok := repositories.WallErrorCodeOf(err); ok {
		switch code {
		case repositories.WallErrorNotFound:
			return fmt.Errorf("%w: %v", ErrWallNotFound, err)
		case repositories.WallErrorInactive:
			return fmt.Errorf("%w: %v", ErrWallInactive, err)
		case repositories.WallErrorFull:
			return fmt.Errorf("%w: %v", ErrWallFull, err)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}
