package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
)

type memoryFixture struct {
	svc      MemoryService
	walls    *fakeWallRepo
	memories *fakeMemoryRepo
	security *recordingSecurity
}

func newMemoryFixture(t *testing.T, now time.Time, limits VisitorLimits, walls ...domain.Wall) memoryFixture {
	t.Helper()
	wallRepo := newFakeWallRepo(walls...)
	memories := newFakeMemoryRepo(wallRepo)
	security := &recordingSecurity{}
	var counter int
	var mu sync.Mutex
	svc, err := NewMemoryService(MemoryServiceDeps{
		Walls:    wallRepo,
		Memories: memories,
		Limiter:  newTestLimiter(fixedClock(now)),
		Limits:   limits,
		Security: security,
		Clock:    fixedClock(now),
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("mem_%d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewMemoryService: %v", err)
	}
	return memoryFixture{svc: svc, walls: wallRepo, memories: memories, security: security}
}

func TestMemoryServiceCreateTextMemory(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newMemoryFixture(t, now, VisitorLimits{}, openWall("wal_1", "host-1", now))

	memory, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
		WallID:      "wal_1",
		Fingerprint: "fp-1",
		Request: guard.CreateMemoryRequest{
			Type:       "Text",
			Content:    "  Happy birthday & many more  ",
			AuthorName: "Ana",
		},
	})
	if err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if memory.ID != "mem_1" || memory.Type != "text" {
		t.Fatalf("unexpected memory: %+v", memory)
	}
	if memory.Content != "Happy birthday &amp; many more" {
		t.Fatalf("expected sanitized content, got %q", memory.Content)
	}
	if memory.AuthorFingerprint != "fp-1" {
		t.Fatalf("expected fingerprint to be stored, got %q", memory.AuthorFingerprint)
	}
	if got := f.walls.walls["wal_1"].MemoryCount; got != 1 {
		t.Fatalf("expected memory count 1, got %d", got)
	}
}

func TestMemoryServiceRejectsUnsafeContentAndReports(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newMemoryFixture(t, now, VisitorLimits{}, openWall("wal_1", "host-1", now))

	_, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
		WallID:      "wal_1",
		Fingerprint: "fp-1",
		Request: guard.CreateMemoryRequest{
			Type:       "text",
			Content:    `<script>alert(1)</script>`,
			AuthorName: "Ana",
		},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	flushReports(f.svc)
	types := f.security.types()
	if len(types) != 1 || types[0] != domain.SecurityEventUnsafeContent {
		t.Fatalf("expected unsafe_content event, got %v", types)
	}
	if len(f.memories.memories) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestMemoryServiceRateLimitsPerFingerprint(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limits := VisitorLimits{Memory: guard.Limit{Window: time.Minute, MaxEvents: 2}}
	f := newMemoryFixture(t, now, limits, openWall("wal_1", "host-1", now))

	create := func(fp string) error {
		_, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
			WallID:      "wal_1",
			Fingerprint: fp,
			Request:     guard.CreateMemoryRequest{Type: "text", Content: "hello", AuthorName: "Ana"},
		})
		return err
	}
	for i := 0; i < 2; i++ {
		if err := create("fp-1"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	err := create("fp-1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) || rlErr.RetryAfter() != time.Minute {
		t.Fatalf("expected retry after one minute, got %v", err)
	}
	if err := create("fp-2"); err != nil {
		t.Fatalf("expected another fingerprint to pass, got %v", err)
	}
	flushReports(f.svc)
	types := f.security.types()
	if len(types) != 1 || types[0] != domain.SecurityEventRateLimitExceeded {
		t.Fatalf("expected rate_limit_exceeded event, got %v", types)
	}
}

func TestMemoryServiceWallStateErrors(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	inactive := openWall("wal_inactive", "host-1", now)
	inactive.IsActive = false
	expired := openWall("wal_expired", "host-1", now)
	expired.ExpiresAt = now.Add(-time.Second)
	full := openWall("wal_full", "host-1", now)
	full.MaxMemories = 1
	full.MemoryCount = 1
	f := newMemoryFixture(t, now, VisitorLimits{}, inactive, expired, full)

	cases := []struct {
		wallID string
		want   error
	}{
		{"wal_missing", ErrWallNotFound},
		{"wal_inactive", ErrWallInactive},
		{"wal_expired", ErrWallInactive},
		{"wal_full", ErrWallFull},
	}
	for _, tc := range cases {
		t.Run(tc.wallID, func(t *testing.T) {
			_, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
				WallID:      tc.wallID,
				Fingerprint: "fp-" + tc.wallID,
				Request:     guard.CreateMemoryRequest{Type: "text", Content: "hi", AuthorName: "Ana"},
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMemoryServiceCapacityHoldsUnderConcurrency(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	wall := openWall("wal_1", "host-1", now)
	wall.MaxMemories = 3
	f := newMemoryFixture(t, now, VisitorLimits{}, wall)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		full    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateMemory(context.Background(), CreateMemoryCommand{
				WallID:      "wal_1",
				Fingerprint: fmt.Sprintf("fp-%d", i),
				Request:     guard.CreateMemoryRequest{Type: "text", Content: "hi", AuthorName: "Ana"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrWallFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 3 || full != 5 {
		t.Fatalf("expected 3 created and 5 full, got %d and %d", created, full)
	}
}

func TestMemoryServiceListMemoriesRequiresWall(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newMemoryFixture(t, now, VisitorLimits{}, openWall("wal_1", "host-1", now))

	if _, err := f.svc.ListMemories(context.Background(), "wal_missing", Pagination{}); !errors.Is(err, ErrWallNotFound) {
		t.Fatalf("expected wall not found, got %v", err)
	}
	f.memories.memories["mem_x"] = Memory{ID: "mem_x", WallID: "wal_1"}
	page, err := f.svc.ListMemories(context.Background(), "wal_1", Pagination{})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one memory, got %d", len(page.Items))
	}
}
