package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/requestctx"
	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

const (
	maxJSONBodySize     = 32 * 1024
	wallInactiveMessage = "This wall is no longer active"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// ValidationRecorder counts validation rejections by field.
type ValidationRecorder interface {
	ObserveValidationRejected(field string)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded JSON body into dst and writes the error response itself. It
// reports whether the handler may continue.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

// writeServiceError maps service sentinels onto the HTTP error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, recorder ValidationRecorder) {
	if err == nil {
		return
	}

	var rlErr *services.RateLimitError
	if errors.As(err, &rlErr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", rlErr.Error(), http.StatusTooManyRequests).
			WithRetryAfter(rlErr.RetryAfter()))
		return
	}

	var vErr *guard.ValidationError
	if errors.As(err, &vErr) {
		if recorder != nil {
			recorder.ObserveValidationRejected(vErr.Field)
		}
		requestctx.Annotate(ctx, "rejectedField", vErr.Field)
		apiErr := httpx.NewError("invalid_input", vErr.Reason, http.StatusBadRequest)
		if vErr.Field != "" {
			apiErr = apiErr.WithDetails(map[string]any{"field": vErr.Field})
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWallNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("wall_not_found", "wall not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMemoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("memory_not_found", "memory not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWallInactive):
		httpx.WriteError(ctx, w, httpx.NewError("wall_inactive", wallInactiveMessage, http.StatusForbidden))
	case errors.Is(err, services.ErrWallFull):
		httpx.WriteError(ctx, w, httpx.NewError("wall_full", "wall is full", http.StatusConflict))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for wall", http.StatusForbidden))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backing service unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error(fmt.Sprintf("unhandled service error: %v", err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
