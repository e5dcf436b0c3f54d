package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

// Registry wires every Firestore repository onto one provider.
type Registry struct {
	provider       *pfirestore.Provider
	walls          *WallRepository
	memories       *MemoryRepository
	comments       *CommentRepository
	reactions      *ReactionRepository
	securityEvents *SecurityEventRepository
	health         repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories. health may be nil when readiness checks are not wired.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	walls, err := NewWallRepository(provider)
	if err != nil {
		return nil, err
	}
	memories, err := NewMemoryRepository(provider)
	if err != nil {
		return nil, err
	}
	comments, err := NewCommentRepository(provider)
	if err != nil {
		return nil, err
	}
	reactions, err := NewReactionRepository(provider)
	if err != nil {
		return nil, err
	}
	events, err := NewSecurityEventRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:       provider,
		walls:          walls,
		memories:       memories,
		comments:       comments,
		reactions:      reactions,
		securityEvents: events,
		health:         health,
	}, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Walls() repositories.WallRepository         { return r.walls }
func (r *Registry) Memories() repositories.MemoryRepository    { return r.memories }
func (r *Registry) Comments() repositories.CommentRepository   { return r.comments }
func (r *Registry) Reactions() repositories.ReactionRepository { return r.reactions }
func (r *Registry) SecurityEvents() repositories.SecurityEventRepository {
	return r.securityEvents
}
func (r *Registry) Health() repositories.HealthRepository { return r.health }
