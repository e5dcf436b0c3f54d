package repositories

import (
	"context"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency wiring.
type Registry interface {
	Close(ctx context.Context) error

	Walls() WallRepository
	Memories() MemoryRepository
	Comments() CommentRepository
	Reactions() ReactionRepository
	SecurityEvents() SecurityEventRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// WallUpdate lists the mutable wall fields. Nil fields are left untouched.
type WallUpdate struct {
	ThemeColor *string
	IsActive   *bool
	UpdatedAt  time.Time
}

// WallRepository persists host walls.
type WallRepository interface {
	Insert(ctx context.Context, wall domain.Wall) error
	FindByID(ctx context.Context, wallID string) (domain.Wall, error)
	ListByHost(ctx context.Context, hostUID string, pager domain.Pagination) (domain.CursorPage[domain.Wall], error)
	Update(ctx context.Context, wallID string, update WallUpdate) (domain.Wall, error)
	Delete(ctx context.Context, wallID string) error
	// ListExpired returns active walls whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Wall, error)
}

// MemoryRepository persists wall memories. InsertIntoWall enforces the wall capacity atomically
// and fails with a *WallError when the wall cannot accept the memory.
type MemoryRepository interface {
	InsertIntoWall(ctx context.Context, memory domain.Memory, now time.Time) (domain.Memory, error)
	FindByID(ctx context.Context, memoryID string) (domain.Memory, error)
	ListByWall(ctx context.Context, wallID string, pager domain.Pagination) (domain.CursorPage[domain.Memory], error)
	DeleteByWall(ctx context.Context, wallID string) (int, error)
}

// CommentRepository persists memory comments.
type CommentRepository interface {
	Insert(ctx context.Context, comment domain.Comment) error
	ListByMemory(ctx context.Context, memoryID string, limit int) ([]domain.Comment, error)
}

// ReactionRepository persists at most one reaction per memory, emoji and fingerprint.
type ReactionRepository interface {
	// Upsert stores the reaction and reports whether it was newly created.
	Upsert(ctx context.Context, reaction domain.Reaction) (domain.Reaction, bool, error)
	ListByMemory(ctx context.Context, memoryID string) ([]domain.Reaction, error)
}

// SecurityEventRepository stores the audit trail of guard rejections.
type SecurityEventRepository interface {
	Insert(ctx context.Context, event domain.SecurityEvent) error
}

// HealthRepository reports the status of external dependencies used by the API.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
