package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name      string
		forwarded []string
		hops      int
		want      string
	}{
		{name: "peer only", want: "10.0.0.5"},
		{name: "header ignored without trusted hops", forwarded: []string{"203.0.113.7"}, want: "10.0.0.5"},
		{name: "one hop takes rightmost", forwarded: []string{"198.51.100.9, 203.0.113.7"}, hops: 1, want: "203.0.113.7"},
		{name: "two hops", forwarded: []string{"198.51.100.9, 203.0.113.7, 10.0.0.1"}, hops: 2, want: "203.0.113.7"},
		{name: "repeated headers are one list", forwarded: []string{"198.51.100.9", "203.0.113.7"}, hops: 1, want: "203.0.113.7"},
		{name: "too few entries", forwarded: []string{"203.0.113.7"}, hops: 2, want: "10.0.0.5"},
		{name: "junk entry", forwarded: []string{"not-an-ip"}, hops: 1, want: "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.5:4312"
			for _, value := range tc.forwarded {
				req.Header.Add("X-Forwarded-For", value)
			}
			if got := ClientIP(req, tc.hops); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
