//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore/emulator"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	return emulator.Provider(t, "wall-test")
}

func TestMemoryRepositoryEnforcesCapacityIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	walls, err := NewWallRepository(provider)
	if err != nil {
		t.Fatalf("new wall repository: %v", err)
	}
	memories, err := NewMemoryRepository(provider)
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	wall := domain.Wall{
		ID:          "wal_capacity",
		Name:        "Capacity",
		ThemeColor:  "#6366f1",
		HostUserID:  "host-1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		MaxMemories: 3,
		IsActive:    true,
	}
	if err := walls.Insert(ctx, wall); err != nil {
		t.Fatalf("insert wall: %v", err)
	}

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		full     int
	)
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(idx int) {
			defer wg.Done()
			_, err := memories.InsertIntoWall(ctx, domain.Memory{
				ID:         fmt.Sprintf("mem_%02d", idx),
				WallID:     wall.ID,
				Type:       "text",
				Content:    "hello",
				AuthorName: "guest",
			}, now)
			mu.Lock()
			defer mu.Unlock()
			switch code, _ := repositories.WallErrorCodeOf(err); {
			case err == nil:
				accepted++
			case code == repositories.WallErrorFull:
				full++
			default:
				t.Errorf("insert %d: %v", idx, err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 3 || full != writers-3 {
		t.Fatalf("expected 3 accepted and %d full, got %d/%d", writers-3, accepted, full)
	}
	stored, err := walls.FindByID(ctx, wall.ID)
	if err != nil {
		t.Fatalf("find wall: %v", err)
	}
	if stored.MemoryCount != 3 {
		t.Fatalf("expected memoryCount 3, got %d", stored.MemoryCount)
	}

	page, err := memories.ListByWall(ctx, wall.ID, domain.Pagination{PageSize: 2})
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(page.Items) != 2 || page.NextPageToken == "" {
		t.Fatalf("expected first page of 2 with token, got %d items token=%q", len(page.Items), page.NextPageToken)
	}
	rest, err := memories.ListByWall(ctx, wall.ID, domain.Pagination{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list memories page 2: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextPageToken != "" {
		t.Fatalf("expected final page of 1, got %d items token=%q", len(rest.Items), rest.NextPageToken)
	}

	inactive := false
	if _, err := walls.Update(ctx, wall.ID, repositories.WallUpdate{IsActive: &inactive, UpdatedAt: now}); err != nil {
		t.Fatalf("deactivate wall: %v", err)
	}
	_, err = memories.InsertIntoWall(ctx, domain.Memory{ID: "mem_late", WallID: wall.ID, Type: "text", AuthorName: "guest"}, now)
	if code, _ := repositories.WallErrorCodeOf(err); code != repositories.WallErrorInactive {
		t.Fatalf("expected inactive wall error, got %v", err)
	}
	_, err = memories.InsertIntoWall(ctx, domain.Memory{ID: "mem_orphan", WallID: "wal_missing", Type: "text", AuthorName: "guest"}, now)
	if code, _ := repositories.WallErrorCodeOf(err); code != repositories.WallErrorNotFound {
		t.Fatalf("expected missing wall error, got %v", err)
	}

	deleted, err := memories.DeleteByWall(ctx, wall.ID)
	if err != nil || deleted != 3 {
		t.Fatalf("expected 3 deleted memories, got %d (%v)", deleted, err)
	}
}

func TestReactionRepositoryUpsertIntegration(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reactions, err := NewReactionRepository(provider)
	if err != nil {
		t.Fatalf("new reaction repository: %v", err)
	}
	first := domain.Reaction{MemoryID: "mem_1", Emoji: "🎉", AuthorFingerprint: "fp1", CreatedAt: time.Now()}
	stored, created, err := reactions.Upsert(ctx, first)
	if err != nil || !created {
		t.Fatalf("expected first reaction to be created, got %v (%v)", created, err)
	}
	again, created, err := reactions.Upsert(ctx, first)
	if err != nil || created {
		t.Fatalf("expected repeat reaction to be a no-op, got %v (%v)", created, err)
	}
	if again.ID != stored.ID {
		t.Fatalf("expected same reaction id, got %s and %s", stored.ID, again.ID)
	}
	if _, _, err := reactions.Upsert(ctx, domain.Reaction{MemoryID: "mem_1", Emoji: "🎉", AuthorFingerprint: "fp2", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("second visitor reaction: %v", err)
	}
	list, err := reactions.ListByMemory(ctx, "mem_1")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 reactions, got %d (%v)", len(list), err)
	}

	walls, _ := NewWallRepository(provider)
	if _, err := walls.FindByID(ctx, "wal_nope"); err == nil {
		t.Fatalf("expected missing wall error")
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			t.Fatalf("expected not found repository error, got %v", err)
		}
	}
}
