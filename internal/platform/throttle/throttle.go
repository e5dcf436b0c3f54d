// Package throttle applies a coarse per-client token bucket in front of write routes.
package throttle

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Piyushhbhutoria/memory-wall/internal/platform/httpx"
)

const defaultIdleTTL = 15 * time.Minute

// Limiter keeps one token bucket per key and forgets keys idle for longer than idleTTL.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	hops    int
	now     func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Option customises the limiter.
type Option func(*Limiter)

// WithIdleTTL sets how long an unused bucket is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

// WithTrustedHops keys the middleware on the X-Forwarded-For entry written by the outermost of
// hops trusted proxies. Zero keys on the peer address.
func WithTrustedHops(hops int) Option {
	return func(l *Limiter) {
		if hops >= 0 {
			l.hops = hops
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a limiter refilling rps tokens per second up to burst.
func New(rps float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow consumes one token for key. When the bucket is empty it reports how long until the
// next token is available.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	lim := ent.lim
	l.mu.Unlock()

	if lim.AllowN(now, 1) {
		return true, 0
	}
	wait := time.Second
	if l.rps > 0 {
		wait = time.Duration(float64(time.Second) / float64(l.rps))
	}
	return false, wait
}

// Cleanup drops buckets idle for longer than the idle TTL and returns how many were removed.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Middleware throttles requests by client IP. Safe methods pass through untouched.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(httpx.ClientIP(r, l.hops))
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("too_many_requests", "too many requests from this address", http.StatusTooManyRequests).WithRetryAfter(wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
