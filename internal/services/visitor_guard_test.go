package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type blockingSecurity struct {
	release chan struct{}
	calls   chan SecurityEvent
}

func (b *blockingSecurity) Record(ctx context.Context, event SecurityEvent) (SecurityEvent, error) {
	b.calls <- event
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return event, nil
}

func TestMemoryServiceFloodRecordsOneRateLimitEvent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newMemoryFixture(t, now, VisitorLimits{}, openWall("wal_1", "host-1", now))

	rejected := 0
	for i := 0; i < 1000; i++ {
		_, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
			WallID:      "wal_1",
			Fingerprint: "fp-flood",
			Request:     guard.CreateMemoryRequest{Type: "text", Content: "hi", AuthorName: "Ana"},
		})
		if errors.Is(err, ErrRateLimited) {
			rejected++
		}
	}
	flushReports(f.svc)

	if rejected != 990 {
		t.Fatalf("expected 990 rejections, got %d", rejected)
	}
	types := f.security.types()
	if len(types) != 1 || types[0] != domain.SecurityEventRateLimitExceeded {
		t.Fatalf("expected a single rate_limit_exceeded event, got %d: %v", len(types), types)
	}
}

func TestVisitorGuardReportsAgainAfterWindow(t *testing.T) {
	clock := &steppingClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	security := &recordingSecurity{}
	g := newVisitorGuard(newTestLimiter(clock.Now), security, nil, clock.Now)
	limit := guard.Limit{Window: time.Minute, MaxEvents: 1}

	attempt := func(fp string) error {
		return g.admit(context.Background(), fp, ActionCommentCreation, limit, "", nil)
	}

	if err := attempt("fp-1"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := attempt("fp-1"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected rate limited, got %v", err)
		}
	}
	if err := attempt("fp-2"); err != nil {
		t.Fatalf("other fingerprint: %v", err)
	}
	if err := attempt("fp-2"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	g.wait()
	if got := len(security.types()); got != 2 {
		t.Fatalf("expected one event per fingerprint, got %d", got)
	}

	clock.Advance(time.Minute)
	if err := attempt("fp-1"); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
	if err := attempt("fp-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	g.wait()
	if got := len(security.types()); got != 3 {
		t.Fatalf("expected a new event in the next window, got %d", got)
	}
}

func TestVisitorGuardReportsOffRequestPath(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	security := &blockingSecurity{release: make(chan struct{}), calls: make(chan SecurityEvent, 1)}
	g := newVisitorGuard(newTestLimiter(fixedClock(now)), security, nil, fixedClock(now))

	ctx, cancel := context.WithCancel(context.Background())
	g.screenMarkup(ctx, "fp-1", "content", `<script>alert(1)</script>`, nil)
	cancel()

	select {
	case event := <-security.calls:
		if event.EventType != domain.SecurityEventUnsafeContent || event.Metadata["field"] != "content" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the report to be dispatched")
	}
	close(security.release)
	g.wait()
}
