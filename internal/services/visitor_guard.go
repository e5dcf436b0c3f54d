package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
)

// VisitorLimits are the per-fingerprint windows applied to each visitor action.
type VisitorLimits struct {
	Memory   guard.Limit
	Comment  guard.Limit
	Reaction guard.Limit
	Upload   guard.Limit
}

// DefaultVisitorLimits returns the stock per-minute budgets.
func DefaultVisitorLimits() VisitorLimits {
	return VisitorLimits{
		Memory:   guard.Limit{Window: time.Minute, MaxEvents: 10},
		Comment:  guard.Limit{Window: time.Minute, MaxEvents: 10},
		Reaction: guard.Limit{Window: time.Minute, MaxEvents: 30},
		Upload:   guard.Limit{Window: time.Minute, MaxEvents: 5},
	}
}

func (l VisitorLimits) withDefaults() VisitorLimits {
	def := DefaultVisitorLimits()
	if l.Memory.MaxEvents <= 0 {
		l.Memory = def.Memory
	}
	if l.Comment.MaxEvents <= 0 {
		l.Comment = def.Comment
	}
	if l.Reaction.MaxEvents <= 0 {
		l.Reaction = def.Reaction
	}
	if l.Upload.MaxEvents <= 0 {
		l.Upload = def.Upload
	}
	return l
}

const (
	defaultReportWindow  = time.Minute
	defaultReportTimeout = 5 * time.Second
	reportSweepEvery     = 256
)

// visitorGuard is shared by the visitor write services: it applies the action window and
// reports rejections to the security event sink. Reports are written off the request path and
// at most once per window for each fingerprint and kind of rejection.
type visitorGuard struct {
	limiter  ActionLimiter
	security SecurityEventRecorder
	logger   func(context.Context, string, map[string]any)
	now      func() time.Time
	timeout  time.Duration

	mu       sync.Mutex
	reported map[string]time.Time
	inserts  int
	pending  sync.WaitGroup
}

func newVisitorGuard(limiter ActionLimiter, security SecurityEventRecorder, logger func(context.Context, string, map[string]any), clock func() time.Time) *visitorGuard {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	if clock == nil {
		clock = time.Now
	}
	return &visitorGuard{
		limiter:  limiter,
		security: security,
		logger:   logger,
		now:      clock,
		timeout:  defaultReportTimeout,
		reported: make(map[string]time.Time),
	}
}

// admit records one attempt of action for fingerprint and fails with *RateLimitError when the
// window is full. message overrides the error text shown to the visitor.
func (g *visitorGuard) admit(ctx context.Context, fingerprint, action string, limit guard.Limit, message string, metadata map[string]string) error {
	if g.limiter == nil {
		return nil
	}
	decision := g.limiter.CheckAndRecordAction(ctx, fingerprint, action, limit)
	if decision.Allowed {
		return nil
	}

	meta := cloneMetadata(metadata)
	meta["action"] = action
	meta["count"] = strconv.Itoa(decision.Count)
	meta["limit"] = strconv.Itoa(decision.Limit.MaxEvents)
	g.reportOnce(ctx, action, decision.Limit.Window, SecurityEvent{
		EventType:   domain.SecurityEventRateLimitExceeded,
		Description: fmt.Sprintf("%s exceeded %d per %s", action, decision.Limit.MaxEvents, decision.Limit.Window),
		Fingerprint: fingerprint,
		Metadata:    meta,
	})
	return &RateLimitError{Action: action, Message: message, Decision: decision}
}

// screenMarkup reports unsafe markup in a text field before validation rejects it.
func (g *visitorGuard) screenMarkup(ctx context.Context, fingerprint, field, text string, metadata map[string]string) {
	pattern := guard.MatchUnsafeMarkup(text)
	if pattern == "" {
		return
	}
	meta := cloneMetadata(metadata)
	meta["field"] = field
	meta["pattern"] = pattern
	g.reportOnce(ctx, field, defaultReportWindow, SecurityEvent{
		EventType:   domain.SecurityEventUnsafeContent,
		Description: fmt.Sprintf("unsafe markup (%s) in %s", pattern, field),
		Fingerprint: fingerprint,
		Metadata:    meta,
	})
}

// reportOnce hands event to the recorder unless the same fingerprint already produced an event
// of this type and scope within window.
func (g *visitorGuard) reportOnce(ctx context.Context, scope string, window time.Duration, event SecurityEvent) {
	if g.security == nil {
		return
	}
	if window <= 0 {
		window = defaultReportWindow
	}
	key := event.EventType + ":" + scope + ":" + guard.NormalizeIdentifier(event.Fingerprint)
	now := g.now()

	g.mu.Lock()
	if until, ok := g.reported[key]; ok && now.Before(until) {
		g.mu.Unlock()
		return
	}
	g.reported[key] = now.Add(window)
	g.inserts++
	if g.inserts%reportSweepEvery == 0 {
		for k, until := range g.reported {
			if !now.Before(until) {
				delete(g.reported, k)
			}
		}
	}
	g.mu.Unlock()

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		defer cancel()
		if _, err := g.security.Record(reportCtx, event); err != nil {
			g.logger(reportCtx, "security.record_failed", map[string]any{
				"eventType": event.EventType,
				"error":     err.Error(),
			})
		}
	}()
}

// wait blocks until every dispatched report has finished.
func (g *visitorGuard) wait() {
	g.pending.Wait()
}

func cloneMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+4)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
