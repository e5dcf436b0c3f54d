package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFromRequestDefaults(t *testing.T) {
	req, err := FromRequest(httptest.NewRequest("GET", "/memories", nil), Limits{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if req.PageSize != Feed.Default || req.PageToken != "" || !req.Cursor.IsZero() {
		t.Fatalf("unexpected defaults %+v", req)
	}
}

func TestFromRequestClampsPageSize(t *testing.T) {
	limits := Limits{Default: 10, Max: 30}
	cases := map[string]int{
		"/memories?pageSize=5":   5,
		"/memories?pageSize=500": 30,
		"/memories?pageSize=+30": 30,
	}
	for target, want := range cases {
		req, err := FromRequest(httptest.NewRequest("GET", target, nil), limits)
		if err != nil {
			t.Fatalf("%s: %v", target, err)
		}
		if req.PageSize != want {
			t.Fatalf("%s: expected %d, got %d", target, want, req.PageSize)
		}
	}

	req, err := FromRequest(httptest.NewRequest("GET", "/memories", nil), Limits{Default: 50, Max: 20})
	if err != nil || req.PageSize != 20 {
		t.Fatalf("expected default clamped to max, got %d, %v", req.PageSize, err)
	}
}

func TestFromRequestRejectsBadInput(t *testing.T) {
	cases := map[string]error{
		"pageSize=abc":     ErrInvalidPageSize,
		"pageSize=0":       ErrInvalidPageSize,
		"pageSize=-3":      ErrInvalidPageSize,
		"pageToken=***":    ErrInvalidPageToken,
		"pageToken=bm9wZQ": ErrInvalidPageToken,
	}
	for query, want := range cases {
		r := httptest.NewRequest("GET", "/memories?"+query, nil)
		if _, err := FromRequest(r, Limits{}); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", query, want, err)
		}
	}
}

func TestCursorTokenRoundTripsThroughRequest(t *testing.T) {
	cursor := Cursor{At: time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*3600)), ID: "mem_01"}
	token := EncodeToken(cursor)
	if token == "" {
		t.Fatalf("expected token")
	}

	req, err := FromRequest(httptest.NewRequest("GET", "/memories?pageToken="+token, nil), Feed)
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if req.PageToken != token || req.Cursor.ID != "mem_01" || !req.Cursor.At.Equal(cursor.At) {
		t.Fatalf("unexpected cursor %+v", req.Cursor)
	}
	if req.Cursor.At.Location() != time.UTC {
		t.Fatalf("expected cursor normalised to UTC")
	}
}

func TestEncodeZeroCursor(t *testing.T) {
	if EncodeToken(Cursor{}) != "" {
		t.Fatalf("expected empty token for first page")
	}
	if c, err := DecodeToken("  "); err != nil || !c.IsZero() {
		t.Fatalf("expected zero cursor for blank token")
	}
}
