package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	commentIDPrefix   = "cmt_"
	maxListedComments = 200
)

// EngagementServiceDeps bundles collaborators for the comment and reaction services.
type EngagementServiceDeps struct {
	Memories    repositories.MemoryRepository
	Comments    repositories.CommentRepository
	Reactions   repositories.ReactionRepository
	Limiter     ActionLimiter
	Limits      VisitorLimits
	Security    SecurityEventRecorder
	Sanitizer   func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// engagementService implements both CommentService and ReactionService; the two share the
// memory lookup and the visitor guard.
type engagementService struct {
	memories      repositories.MemoryRepository
	comments      repositories.CommentRepository
	reactions     repositories.ReactionRepository
	guard         *visitorGuard
	commentLimit  guard.Limit
	reactionLimit guard.Limit
	sanitize      func(string) string
	clock         func() time.Time
	newID         func() string
}

var (
	_ CommentService  = (*engagementService)(nil)
	_ ReactionService = (*engagementService)(nil)
)

// NewEngagementService wires dependencies into the comment and reaction services.
func NewEngagementService(deps EngagementServiceDeps) (CommentService, ReactionService, error) {
	if deps.Memories == nil {
		return nil, nil, errors.New("engagement service: memory repository is required")
	}
	if deps.Comments == nil {
		return nil, nil, errors.New("engagement service: comment repository is required")
	}
	if deps.Reactions == nil {
		return nil, nil, errors.New("engagement service: reaction repository is required")
	}
	if deps.Limiter == nil {
		return nil, nil, errors.New("engagement service: rate limiter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return commentIDPrefix + ulid.Make().String() }
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = guard.Sanitize
	}
	limits := deps.Limits.withDefaults()

	svc := &engagementService{
		memories:      deps.Memories,
		comments:      deps.Comments,
		reactions:     deps.Reactions,
		guard:         newVisitorGuard(deps.Limiter, deps.Security, deps.Logger, clock),
		commentLimit:  limits.Comment,
		reactionLimit: limits.Reaction,
		sanitize:      sanitize,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}
	return svc, svc, nil
}

func (s *engagementService) CreateComment(ctx context.Context, cmd CreateCommentCommand) (Comment, error) {
	memoryID := strings.TrimSpace(cmd.MemoryID)
	if memoryID == "" {
		return Comment{}, fmt.Errorf("%w: memory id is required", ErrMemoryNotFound)
	}
	fingerprint := strings.TrimSpace(cmd.Fingerprint)
	meta := map[string]string{"memoryId": memoryID}

	if err := s.guard.admit(ctx, fingerprint, ActionCommentCreation, s.commentLimit, "", meta); err != nil {
		return Comment{}, err
	}

	req := cmd.Request
	s.guard.screenMarkup(ctx, fingerprint, "content", req.Content, meta)
	if err := req.Validate(); err != nil {
		return Comment{}, invalidInput(err)
	}
	if err := s.ensureMemory(ctx, memoryID); err != nil {
		return Comment{}, err
	}

	comment := Comment{
		ID:                s.newID(),
		MemoryID:          memoryID,
		Content:           s.sanitize(req.Content),
		AuthorName:        s.sanitize(req.AuthorName),
		AuthorFingerprint: fingerprint,
		CreatedAt:         s.clock(),
	}
	if err := s.comments.Insert(ctx, comment); err != nil {
		return Comment{}, mapRepositoryError(err, nil)
	}
	return comment, nil
}

func (s *engagementService) ListComments(ctx context.Context, memoryID string) ([]Comment, error) {
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory id is required", ErrMemoryNotFound)
	}
	comments, err := s.comments.ListByMemory(ctx, memoryID, maxListedComments)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	return comments, nil
}

// React stores at most one reaction per memory, emoji and fingerprint. The boolean reports
// whether a new reaction was created.
func (s *engagementService) React(ctx context.Context, cmd ReactCommand) (Reaction, bool, error) {
	memoryID := strings.TrimSpace(cmd.MemoryID)
	if memoryID == "" {
		return Reaction{}, false, fmt.Errorf("%w: memory id is required", ErrMemoryNotFound)
	}
	fingerprint := strings.TrimSpace(cmd.Fingerprint)
	if fingerprint == "" {
		return Reaction{}, false, invalidInput(&guard.ValidationError{Field: "fingerprint", Reason: "Fingerprint is required"})
	}

	if err := s.guard.admit(ctx, fingerprint, ActionReaction, s.reactionLimit, "", map[string]string{"memoryId": memoryID}); err != nil {
		return Reaction{}, false, err
	}

	req := cmd.Request
	if err := req.Validate(); err != nil {
		return Reaction{}, false, invalidInput(err)
	}
	if err := s.ensureMemory(ctx, memoryID); err != nil {
		return Reaction{}, false, err
	}

	reaction, created, err := s.reactions.Upsert(ctx, Reaction{
		MemoryID:          memoryID,
		Emoji:             req.Emoji,
		AuthorFingerprint: fingerprint,
		CreatedAt:         s.clock(),
	})
	if err != nil {
		return Reaction{}, false, mapRepositoryError(err, nil)
	}
	return reaction, created, nil
}

// ListReactions aggregates reactions per emoji, most used first.
func (s *engagementService) ListReactions(ctx context.Context, memoryID string) ([]ReactionCount, error) {
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory id is required", ErrMemoryNotFound)
	}
	reactions, err := s.reactions.ListByMemory(ctx, memoryID)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	counts := make(map[string]int)
	for _, reaction := range reactions {
		counts[reaction.Emoji]++
	}
	result := make([]ReactionCount, 0, len(counts))
	for emoji, count := range counts {
		result = append(result, ReactionCount{Emoji: emoji, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Emoji < result[j].Emoji
	})
	return result, nil
}

func (s *engagementService) ensureMemory(ctx context.Context, memoryID string) error {
	if _, err := s.memories.FindByID(ctx, memoryID); err != nil {
		return mapRepositoryError(err, ErrMemoryNotFound)
	}
	return nil
}
