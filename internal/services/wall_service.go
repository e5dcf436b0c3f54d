package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pstorage "github.com/Piyushhbhutoria/memory-wall/internal/platform/storage"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	wallIDPrefix              = "wal_"
	defaultWallTTL            = 30 * 24 * time.Hour
	defaultWallMaxMemories    = 50
	defaultExpiryBatch        = 200
	wallLoggerEventCreated    = "wall.created"
	wallLoggerEventDeleted    = "wall.deleted"
	wallLoggerEventMediaPurge = "wall.media.purge_failed"
	wallLoggerEventExpired    = "wall.expired"
)

// WallServiceDeps bundles collaborators required to construct a WallService.
type WallServiceDeps struct {
	Walls              repositories.WallRepository
	Memories           repositories.MemoryRepository
	Media              MediaObjectStore
	Clock              func() time.Time
	IDGenerator        func() string
	DefaultTTL         time.Duration
	DefaultMaxMemories int
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type wallService struct {
	walls       repositories.WallRepository
	memories    repositories.MemoryRepository
	media       MediaObjectStore
	clock       func() time.Time
	newID       func() string
	ttl         time.Duration
	maxMemories int
	logger      func(context.Context, string, map[string]any)
}

var _ WallService = (*wallService)(nil)

// NewWallService wires dependencies into a concrete WallService implementation.
func NewWallService(deps WallServiceDeps) (WallService, error) {
	if deps.Walls == nil {
		return nil, errors.New("wall service: wall repository is required")
	}
	if deps.Memories == nil {
		return nil, errors.New("wall service: memory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return wallIDPrefix + ulid.Make().String() }
	}
	ttl := deps.DefaultTTL
	if ttl <= 0 {
		ttl = defaultWallTTL
	}
	maxMemories := deps.DefaultMaxMemories
	if maxMemories <= 0 {
		maxMemories = defaultWallMaxMemories
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &wallService{
		walls:    deps.Walls,
		memories: deps.Memories,
		media:    deps.Media,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		ttl:         ttl,
		maxMemories: maxMemories,
		logger:      logger,
	}, nil
}

func (s *wallService) CreateWall(ctx context.Context, cmd CreateWallCommand) (Wall, error) {
	hostUID := strings.TrimSpace(cmd.HostUID)
	if hostUID == "" {
		return Wall{}, fmt.Errorf("%w: an authenticated host is required", ErrForbidden)
	}
	req := cmd.Request
	if err := req.Validate(); err != nil {
		return Wall{}, invalidInput(err)
	}

	now := s.clock()
	wall := Wall{
		ID:          s.newID(),
		Name:        req.Name,
		ThemeColor:  req.ThemeColor,
		HostUserID:  hostUID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		MaxMemories: s.maxMemories,
		IsActive:    true,
	}
	if err := s.walls.Insert(ctx, wall); err != nil {
		return Wall{}, mapRepositoryError(err, nil)
	}
	s.logger(ctx, wallLoggerEventCreated, map[string]any{
		"wallId":  wall.ID,
		"hostUid": hostUID,
	})
	return wall, nil
}

func (s *wallService) GetWall(ctx context.Context, wallID string) (Wall, error) {
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return Wall{}, fmt.Errorf("%w: wall id is required", ErrWallNotFound)
	}
	wall, err := s.walls.FindByID(ctx, wallID)
	if err != nil {
		return Wall{}, mapRepositoryError(err, ErrWallNotFound)
	}
	return wall, nil
}

func (s *wallService) ListHostWalls(ctx context.Context, hostUID string, pager Pagination) (domain.CursorPage[Wall], error) {
	hostUID = strings.TrimSpace(hostUID)
	if hostUID == "" {
		return domain.CursorPage[Wall]{}, fmt.Errorf("%w: an authenticated host is required", ErrForbidden)
	}
	page, err := s.walls.ListByHost(ctx, hostUID, pager)
	if err != nil {
		return domain.CursorPage[Wall]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *wallService) UpdateWall(ctx context.Context, cmd UpdateWallCommand) (Wall, error) {
	req := cmd.Request
	if err := req.Validate(); err != nil {
		return Wall{}, invalidInput(err)
	}
	if _, err := s.ownedWall(ctx, cmd.ActorUID, cmd.IsAdmin, cmd.WallID); err != nil {
		return Wall{}, err
	}
	updated, err := s.walls.Update(ctx, strings.TrimSpace(cmd.WallID), repositories.WallUpdate{
		ThemeColor: req.ThemeColor,
		IsActive:   req.IsActive,
		UpdatedAt:  s.clock(),
	})
	if err != nil {
		return Wall{}, mapRepositoryError(err, ErrWallNotFound)
	}
	return updated, nil
}

func (s *wallService) DeleteWall(ctx context.Context, cmd DeleteWallCommand) error {
	wall, err := s.ownedWall(ctx, cmd.ActorUID, cmd.IsAdmin, cmd.WallID)
	if err != nil {
		return err
	}

	deleted, err := s.memories.DeleteByWall(ctx, wall.ID)
	if err != nil {
		return mapRepositoryError(err, nil)
	}
	purged := 0
	if s.media != nil {
		if prefix, perr := pstorage.WallPrefix(wall.ID); perr == nil {
			purged, perr = s.media.DeletePrefix(ctx, prefix)
			if perr != nil {
				s.logger(ctx, wallLoggerEventMediaPurge, map[string]any{
					"wallId": wall.ID,
					"error":  perr.Error(),
				})
			}
		}
	}
	if err := s.walls.Delete(ctx, wall.ID); err != nil {
		return mapRepositoryError(err, ErrWallNotFound)
	}
	s.logger(ctx, wallLoggerEventDeleted, map[string]any{
		"wallId":   wall.ID,
		"memories": deleted,
		"objects":  purged,
	})
	return nil
}

// ExpireWalls deactivates up to batch walls whose expiry has passed and reports how many changed.
func (s *wallService) ExpireWalls(ctx context.Context, now time.Time, batch int) (int, error) {
	if now.IsZero() {
		now = s.clock()
	}
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	walls, err := s.walls.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, mapRepositoryError(err, nil)
	}
	inactive := false
	expired := 0
	for _, wall := range walls {
		if _, err := s.walls.Update(ctx, wall.ID, repositories.WallUpdate{IsActive: &inactive, UpdatedAt: now}); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return expired, mapRepositoryError(err, nil)
		}
		expired++
	}
	if expired > 0 {
		s.logger(ctx, wallLoggerEventExpired, map[string]any{"count": expired})
	}
	return expired, nil
}

func (s *wallService) ownedWall(ctx context.Context, actorUID string, isAdmin bool, wallID string) (Wall, error) {
	actorUID = strings.TrimSpace(actorUID)
	if actorUID == "" {
		return Wall{}, fmt.Errorf("%w: an authenticated host is required", ErrForbidden)
	}
	wall, err := s.GetWall(ctx, wallID)
	if err != nil {
		return Wall{}, err
	}
	if wall.HostUserID != actorUID && !isAdmin {
		return Wall{}, fmt.Errorf("%w: wall belongs to another host", ErrForbidden)
	}
	return wall, nil
}
