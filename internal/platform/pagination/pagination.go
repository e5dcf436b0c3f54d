// Package pagination reads page requests off the query string and encodes keyset cursors for
// feeds ordered newest first.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Limits bounds pageSize for one endpoint. Zero fields fall back to the feed defaults.
type Limits struct {
	Default int
	Max     int
}

// Feed limits suit a memory wall: a screenful by default, never more than a hundred.
var Feed = Limits{Default: 24, Max: 100}

// Request is a validated page request. Token has already been decoded into Cursor.
type Request struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest reads pageSize and pageToken. Oversized pages are clamped rather than rejected.
func FromRequest(r *http.Request, limits Limits) (Request, error) {
	limits = limits.normalized()
	query := r.URL.Query()

	req := Request{PageSize: limits.Default}
	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			return Request{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPageSize, raw)
		case size < 1:
			return Request{}, fmt.Errorf("%w: must be at least 1", ErrInvalidPageSize)
		}
		req.PageSize = min(size, limits.Max)
	}

	if token := strings.TrimSpace(query.Get("pageToken")); token != "" {
		cursor, err := DecodeToken(token)
		if err != nil {
			return Request{}, err
		}
		req.PageToken, req.Cursor = token, cursor
	}
	return req, nil
}

func (l Limits) normalized() Limits {
	if l.Max <= 0 {
		l.Max = Feed.Max
	}
	if l.Default <= 0 {
		l.Default = Feed.Default
	}
	l.Default = min(l.Default, l.Max)
	return l
}
