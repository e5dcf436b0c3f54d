package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	memoryIDPrefix          = "mem_"
	memoryLoggerEventCreate = "memory.created"
)

// MemoryServiceDeps bundles collaborators required to construct a MemoryService.
type MemoryServiceDeps struct {
	Walls       repositories.WallRepository
	Memories    repositories.MemoryRepository
	Limiter     ActionLimiter
	Limits      VisitorLimits
	Security    SecurityEventRecorder
	Sanitizer   func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type memoryService struct {
	walls    repositories.WallRepository
	memories repositories.MemoryRepository
	guard    *visitorGuard
	limit    guard.Limit
	sanitize func(string) string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ MemoryService = (*memoryService)(nil)

// NewMemoryService wires dependencies into a concrete MemoryService implementation.
func NewMemoryService(deps MemoryServiceDeps) (MemoryService, error) {
	if deps.Walls == nil {
		return nil, errors.New("memory service: wall repository is required")
	}
	if deps.Memories == nil {
		return nil, errors.New("memory service: memory repository is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("memory service: rate limiter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return memoryIDPrefix + ulid.Make().String() }
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = guard.Sanitize
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &memoryService{
		walls:    deps.Walls,
		memories: deps.Memories,
		guard:    newVisitorGuard(deps.Limiter, deps.Security, logger, clock),
		limit:    deps.Limits.withDefaults().Memory,
		sanitize: sanitize,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateMemory runs the guard (window, validation) and then inserts the memory. The wall state
// and capacity checks happen atomically inside the repository insert.
func (s *memoryService) CreateMemory(ctx context.Context, cmd CreateMemoryCommand) (Memory, error) {
	wallID := strings.TrimSpace(cmd.WallID)
	if wallID == "" {
		return Memory{}, fmt.Errorf("%w: wall id is required", ErrWallNotFound)
	}
	fingerprint := strings.TrimSpace(cmd.Fingerprint)
	meta := map[string]string{"wallId": wallID}

	if err := s.guard.admit(ctx, fingerprint, ActionMemoryCreation, s.limit, "", meta); err != nil {
		return Memory{}, err
	}

	req := cmd.Request
	s.guard.screenMarkup(ctx, fingerprint, "content", req.Content, meta)
	if err := req.Validate(); err != nil {
		return Memory{}, invalidInput(err)
	}

	now := s.clock()
	memory := Memory{
		ID:                s.newID(),
		WallID:            wallID,
		Type:              string(req.Type),
		Content:           s.sanitize(req.Content),
		MediaURL:          req.MediaURL,
		MediaType:         req.MediaType,
		AuthorName:        s.sanitize(req.AuthorName),
		AuthorFingerprint: fingerprint,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, err := s.memories.InsertIntoWall(ctx, memory, now)
	if err != nil {
		return Memory{}, mapRepositoryError(err, ErrWallNotFound)
	}
	s.logger(ctx, memoryLoggerEventCreate, map[string]any{
		"wallId":   wallID,
		"memoryId": stored.ID,
		"type":     stored.Type,
	})
	return stored, nil
}

func (s *memoryService) ListMemories(ctx context.Context, wallID string, pager Pagination) (domain.CursorPage[Memory], error) {
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return domain.CursorPage[Memory]{}, fmt.Errorf("%w: wall id is required", ErrWallNotFound)
	}
	if _, err := s.walls.FindByID(ctx, wallID); err != nil {
		return domain.CursorPage[Memory]{}, mapRepositoryError(err, ErrWallNotFound)
	}
	page, err := s.memories.ListByWall(ctx, wallID, pager)
	if err != nil {
		return domain.CursorPage[Memory]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}
