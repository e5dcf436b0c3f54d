package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
)

func newWallServiceForTest(t *testing.T, now time.Time, walls *fakeWallRepo, media *fakeMediaStore) (WallService, *fakeMemoryRepo) {
	t.Helper()
	memories := newFakeMemoryRepo(walls)
	deps := WallServiceDeps{
		Walls:       walls,
		Memories:    memories,
		Clock:       fixedClock(now),
		IDGenerator: sequentialIDs("wal_"),
	}
	if media != nil {
		deps.Media = media
	}
	svc, err := NewWallService(deps)
	if err != nil {
		t.Fatalf("NewWallService: %v", err)
	}
	return svc, memories
}

func TestNewWallServiceRequiresRepositories(t *testing.T) {
	if _, err := NewWallService(WallServiceDeps{}); err == nil {
		t.Fatalf("expected error without wall repository")
	}
	if _, err := NewWallService(WallServiceDeps{Walls: newFakeWallRepo()}); err == nil {
		t.Fatalf("expected error without memory repository")
	}
}

func TestWallServiceCreateWallAppliesDefaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	walls := newFakeWallRepo()
	svc, _ := newWallServiceForTest(t, now, walls, nil)

	wall, err := svc.CreateWall(context.Background(), CreateWallCommand{
		HostUID: "host-1",
		Request: guard.CreateWallRequest{Name: "  Grandma's 90th!  "},
	})
	if err != nil {
		t.Fatalf("CreateWall: %v", err)
	}
	if wall.ID != "wal_a" {
		t.Fatalf("expected generated id, got %q", wall.ID)
	}
	if wall.Name != "Grandma's 90th!" {
		t.Fatalf("expected trimmed name, got %q", wall.Name)
	}
	if wall.ThemeColor != guard.DefaultThemeColor {
		t.Fatalf("expected default theme color, got %q", wall.ThemeColor)
	}
	if !wall.IsActive || wall.MaxMemories != defaultWallMaxMemories {
		t.Fatalf("unexpected defaults: %+v", wall)
	}
	if !wall.ExpiresAt.Equal(now.Add(defaultWallTTL)) {
		t.Fatalf("expected expiry %s, got %s", now.Add(defaultWallTTL), wall.ExpiresAt)
	}
	if _, ok := walls.walls[wall.ID]; !ok {
		t.Fatalf("expected wall to be persisted")
	}
}

func TestWallServiceCreateWallRejectsInvalidName(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newWallServiceForTest(t, now, newFakeWallRepo(), nil)

	_, err := svc.CreateWall(context.Background(), CreateWallCommand{
		HostUID: "host-1",
		Request: guard.CreateWallRequest{Name: "<script>"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var vErr *guard.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
}

func TestWallServiceCreateWallRequiresHost(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newWallServiceForTest(t, now, newFakeWallRepo(), nil)

	_, err := svc.CreateWall(context.Background(), CreateWallCommand{Request: guard.CreateWallRequest{Name: "Party"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestWallServiceGetWallNotFound(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newWallServiceForTest(t, now, newFakeWallRepo(), nil)

	if _, err := svc.GetWall(context.Background(), "wal_missing"); !errors.Is(err, ErrWallNotFound) {
		t.Fatalf("expected wall not found, got %v", err)
	}
}

func TestWallServiceUpdateWallChecksOwnership(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	walls := newFakeWallRepo(openWall("wal_1", "host-1", now))
	svc, _ := newWallServiceForTest(t, now, walls, nil)

	color := "#EC4899"
	cmd := UpdateWallCommand{
		ActorUID: "host-2",
		WallID:   "wal_1",
		Request:  guard.UpdateWallRequest{ThemeColor: &color},
	}
	if _, err := svc.UpdateWall(context.Background(), cmd); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for another host, got %v", err)
	}

	cmd.IsAdmin = true
	updated, err := svc.UpdateWall(context.Background(), cmd)
	if err != nil {
		t.Fatalf("UpdateWall as admin: %v", err)
	}
	if updated.ThemeColor != "#ec4899" {
		t.Fatalf("expected normalized color, got %q", updated.ThemeColor)
	}
	if len(walls.updates) != 1 || !walls.updates[0].UpdatedAt.Equal(now) {
		t.Fatalf("expected one update stamped at now, got %+v", walls.updates)
	}
}

func TestWallServiceUpdateWallRejectsEmptyPatch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	walls := newFakeWallRepo(openWall("wal_1", "host-1", now))
	svc, _ := newWallServiceForTest(t, now, walls, nil)

	_, err := svc.UpdateWall(context.Background(), UpdateWallCommand{ActorUID: "host-1", WallID: "wal_1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestWallServiceDeleteWallCascades(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	walls := newFakeWallRepo(openWall("wal_1", "host-1", now))
	media := newFakeMediaStore()
	media.objects["wal_1/1-a.png"] = []byte("x")
	media.objects["wal_2/1-b.png"] = []byte("y")
	svc, memories := newWallServiceForTest(t, now, walls, media)
	memories.memories["mem_1"] = Memory{ID: "mem_1", WallID: "wal_1"}

	if err := svc.DeleteWall(context.Background(), DeleteWallCommand{ActorUID: "host-1", WallID: "wal_1"}); err != nil {
		t.Fatalf("DeleteWall: %v", err)
	}
	if len(memories.memories) != 0 {
		t.Fatalf("expected memories deleted, got %d", len(memories.memories))
	}
	if _, ok := media.objects["wal_1/1-a.png"]; ok {
		t.Fatalf("expected wall media purged")
	}
	if _, ok := media.objects["wal_2/1-b.png"]; !ok {
		t.Fatalf("expected other wall media untouched")
	}
	if len(walls.deleted) != 1 || walls.deleted[0] != "wal_1" {
		t.Fatalf("expected wall deleted, got %v", walls.deleted)
	}
}

func TestWallServiceExpireWalls(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := openWall("wal_old", "host-1", now)
	expired.ExpiresAt = now.Add(-time.Minute)
	walls := newFakeWallRepo(expired, openWall("wal_new", "host-1", now))
	svc, _ := newWallServiceForTest(t, now, walls, nil)

	count, err := svc.ExpireWalls(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ExpireWalls: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired wall, got %d", count)
	}
	if walls.walls["wal_old"].IsActive {
		t.Fatalf("expected expired wall deactivated")
	}
	if !walls.walls["wal_new"].IsActive {
		t.Fatalf("expected live wall untouched")
	}

	count, err = svc.ExpireWalls(context.Background(), now, 10)
	if err != nil || count != 0 {
		t.Fatalf("expected second run to be a no-op, got %d, %v", count, err)
	}
}

func TestWallServiceListHostWalls(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	walls := newFakeWallRepo(openWall("wal_1", "host-1", now), openWall("wal_2", "host-2", now))
	svc, _ := newWallServiceForTest(t, now, walls, nil)

	page, err := svc.ListHostWalls(context.Background(), "host-1", Pagination{})
	if err != nil {
		t.Fatalf("ListHostWalls: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "wal_1" {
		t.Fatalf("unexpected page: %+v", page.Items)
	}
}
