package guard

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// AnonymousKey replaces blank identifiers so unidentified callers share one window.
	AnonymousKey = "anonymous"

	// DefaultWindow is the trailing window applied when a Limit leaves it unset.
	DefaultWindow = 60 * time.Second
	// DefaultMaxEvents is the number of accepted actions allowed per DefaultWindow.
	DefaultMaxEvents = 10
	// DefaultSuspicionMultiplier triggers the suspicious-activity signal at twice the limit.
	DefaultSuspicionMultiplier = 2

	defaultNotifyTimeout = 5 * time.Second
)

// Limit bounds accepted actions within a trailing window.
type Limit struct {
	Window    time.Duration
	MaxEvents int
}

func (l Limit) normalized() Limit {
	if l.Window <= 0 {
		l.Window = DefaultWindow
	}
	if l.MaxEvents <= 0 {
		l.MaxEvents = DefaultMaxEvents
	}
	return l
}

// Decision describes the outcome of a single CheckAndRecord call.
type Decision struct {
	Allowed    bool
	Key        string
	Count      int
	Limit      Limit
	Remaining  int
	RetryAfter time.Duration
}

// SuspiciousActivity is reported when a key keeps knocking well past its limit.
type SuspiciousActivity struct {
	Key        string
	Identifier string
	Action     string
	Attempts   int
	Limit      Limit
	ObservedAt time.Time
}

// SuspicionNotifier receives suspicious-activity signals. Calls happen off the request path.
type SuspicionNotifier interface {
	NotifySuspicious(ctx context.Context, activity SuspiciousActivity)
}

// SuspicionNotifierFunc adapts a function to SuspicionNotifier.
type SuspicionNotifierFunc func(context.Context, SuspiciousActivity)

// NotifySuspicious implements SuspicionNotifier.
func (f SuspicionNotifierFunc) NotifySuspicious(ctx context.Context, activity SuspiciousActivity) {
	if f != nil {
		f(ctx, activity)
	}
}

// Observer receives every decision, typically to feed metrics.
type Observer interface {
	ObserveDecision(action string, decision Decision)
	ObserveSuspicious(action string)
}

// RateLimiter is a sliding-window log keyed by visitor identifier. Construct one per process (or
// per test) and share it between handlers; it holds no package-level state.
type RateLimiter struct {
	store         WindowStore
	defaults      Limit
	clock         func() time.Time
	multiplier    int
	notifier      SuspicionNotifier
	notifyTimeout time.Duration
	observer      Observer
	logger        func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	attempts map[string]*attemptLog
}

// attemptLog is the secondary log behind the suspicion signal. span is the window the key was
// last checked with.
type attemptLog struct {
	stamps   []time.Time
	span     time.Duration
	notified time.Time
}

func (a *attemptLog) expired(now time.Time) bool {
	live := len(a.stamps) > 0 && now.Sub(a.stamps[len(a.stamps)-1]) < a.span
	recent := !a.notified.IsZero() && now.Sub(a.notified) < a.span
	return !live && !recent
}

// RateLimiterOption customises a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithDefaultLimit overrides the limit used by Allow and by zero-valued Limits.
func WithDefaultLimit(limit Limit) RateLimiterOption {
	return func(l *RateLimiter) {
		l.defaults = limit.normalized()
	}
}

// WithClock injects the time source, mainly for tests.
func WithClock(clock func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithStore replaces the in-memory window store, e.g. with a RedisWindowStore.
func WithStore(store WindowStore) RateLimiterOption {
	return func(l *RateLimiter) {
		if store != nil {
			l.store = store
		}
	}
}

// WithSuspicionNotifier sets the collaborator told about keys that exceed multiplier x MaxEvents
// attempts inside one window. A multiplier below 2 falls back to DefaultSuspicionMultiplier.
func WithSuspicionNotifier(notifier SuspicionNotifier, multiplier int) RateLimiterOption {
	return func(l *RateLimiter) {
		l.notifier = notifier
		if multiplier >= 2 {
			l.multiplier = multiplier
		}
	}
}

// WithObserver attaches a decision observer.
func WithObserver(observer Observer) RateLimiterOption {
	return func(l *RateLimiter) {
		l.observer = observer
	}
}

// WithLogger attaches a structured logging hook used for store failures.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) RateLimiterOption {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// NewRateLimiter constructs a limiter backed by a MemoryWindowStore unless WithStore is given.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		defaults:      Limit{Window: DefaultWindow, MaxEvents: DefaultMaxEvents},
		clock:         time.Now,
		multiplier:    DefaultSuspicionMultiplier,
		notifyTimeout: defaultNotifyTimeout,
		attempts:      make(map[string]*attemptLog),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.store == nil {
		l.store = NewMemoryWindowStore()
	}
	return l
}

// Allow applies the default limit to identifier.
func (l *RateLimiter) Allow(identifier string) bool {
	return l.CheckAndRecord(context.Background(), identifier, Limit{}).Allowed
}

// CheckAndRecord prunes the identifier's window, rejects when MaxEvents accepted actions remain
// inside it, and otherwise records now as a new accepted action.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, identifier string, limit Limit) Decision {
	return l.CheckAndRecordAction(ctx, identifier, "", limit)
}

// CheckAndRecordAction is CheckAndRecord with a window scoped to one action, so that e.g. uploads
// and comments are throttled independently for the same visitor.
func (l *RateLimiter) CheckAndRecordAction(ctx context.Context, identifier, action string, limit Limit) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	identifier = NormalizeIdentifier(identifier)
	action = strings.TrimSpace(action)
	key := WindowKey(identifier, action)
	limit = l.resolve(limit)
	now := l.clock()

	state, err := l.store.Record(ctx, key, now, limit)
	if err != nil {
		// fail open
		l.log(ctx, "guard.ratelimit.store_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		state = WindowState{Allowed: true, Count: 1}
	}

	decision := Decision{
		Allowed:   state.Allowed,
		Key:       key,
		Count:     state.Count,
		Limit:     limit,
		Remaining: limit.MaxEvents - state.Count,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !state.Allowed && !state.Oldest.IsZero() {
		decision.RetryAfter = state.Oldest.Add(limit.Window).Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
	}

	if l.observer != nil {
		l.observer.ObserveDecision(action, decision)
	}
	l.trackAttempt(ctx, key, identifier, action, limit, now)
	return decision
}

// Prune drops windows that no longer hold any live entries. It returns the number removed.
func (l *RateLimiter) Prune(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}
	now := l.clock()

	l.mu.Lock()
	for key, entry := range l.attempts {
		if entry.expired(now) {
			delete(l.attempts, key)
		}
	}
	l.mu.Unlock()

	return l.store.Prune(ctx, now)
}

func (l *RateLimiter) resolve(limit Limit) Limit {
	if limit.Window <= 0 {
		limit.Window = l.defaults.Window
	}
	if limit.MaxEvents <= 0 {
		limit.MaxEvents = l.defaults.MaxEvents
	}
	return limit
}

// trackAttempt counts every call, accepted or not, and fires the suspicion signal at most once
// per window per key.
func (l *RateLimiter) trackAttempt(ctx context.Context, key, identifier, action string, limit Limit, now time.Time) {
	if l.notifier == nil {
		return
	}
	threshold := limit.MaxEvents * l.multiplier

	l.mu.Lock()
	entry, ok := l.attempts[key]
	if !ok {
		entry = &attemptLog{}
		l.attempts[key] = entry
	}
	entry.span = limit.Window
	entry.stamps = append(pruneWindow(entry.stamps, now, limit.Window), now)
	attempts := len(entry.stamps)

	fire := false
	if attempts >= threshold && (entry.notified.IsZero() || now.Sub(entry.notified) >= limit.Window) {
		entry.notified = now
		fire = true
	}
	l.mu.Unlock()

	if !fire {
		return
	}
	if l.observer != nil {
		l.observer.ObserveSuspicious(action)
	}

	activity := SuspiciousActivity{
		Key:        key,
		Identifier: identifier,
		Action:     action,
		Attempts:   attempts,
		Limit:      limit,
		ObservedAt: now,
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTimeout)
	go func() {
		defer cancel()
		l.notifier.NotifySuspicious(notifyCtx, activity)
	}()
}

func (l *RateLimiter) log(ctx context.Context, event string, fields map[string]any) {
	if l.logger != nil {
		l.logger(ctx, event, fields)
	}
}

// NormalizeIdentifier trims identifier and substitutes AnonymousKey when nothing is left.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return AnonymousKey
	}
	return identifier
}

// WindowKey composes the store key for an identifier and optional action.
func WindowKey(identifier, action string) string {
	if action == "" {
		return identifier
	}
	return identifier + ":" + action
}
