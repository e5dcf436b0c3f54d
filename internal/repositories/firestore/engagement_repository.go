package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	commentsCollection  = "comments"
	reactionsCollection = "reactions"
)

type commentDocument struct {
	MemoryID          string    `firestore:"memoryId"`
	Content           string    `firestore:"content"`
	AuthorName        string    `firestore:"authorName"`
	AuthorFingerprint string    `firestore:"authorFingerprint,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

type reactionDocument struct {
	MemoryID          string    `firestore:"memoryId"`
	Emoji             string    `firestore:"emoji"`
	AuthorFingerprint string    `firestore:"authorFingerprint"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

// CommentRepository implements repositories.CommentRepository.
type CommentRepository struct {
	base *pfirestore.Collection[commentDocument]
}

// NewCommentRepository constructs a Firestore-backed comment repository.
func NewCommentRepository(provider *pfirestore.Provider) (*CommentRepository, error) {
	if provider == nil {
		return nil, errors.New("comment repository requires firestore provider")
	}
	return &CommentRepository{base: pfirestore.NewCollection[commentDocument](provider, commentsCollection)}, nil
}

// Insert creates the comment document.
func (r *CommentRepository) Insert(ctx context.Context, comment domain.Comment) error {
	if r == nil || r.base == nil {
		return errors.New("comment repository not initialised")
	}
	return r.base.Create(ctx, strings.TrimSpace(comment.ID), commentDocument{
		MemoryID:          comment.MemoryID,
		Content:           comment.Content,
		AuthorName:        comment.AuthorName,
		AuthorFingerprint: comment.AuthorFingerprint,
		CreatedAt:         comment.CreatedAt.UTC(),
	})
}

// ListByMemory returns comments oldest first.
func (r *CommentRepository) ListByMemory(ctx context.Context, memoryID string, limit int) ([]domain.Comment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("comment repository not initialised")
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return nil, errors.New("comment repository: memory id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("memoryId", "==", memoryID).OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	comments := make([]domain.Comment, 0, len(docs))
	for _, doc := range docs {
		comments = append(comments, domain.Comment{
			ID:                doc.ID,
			MemoryID:          doc.Data.MemoryID,
			Content:           doc.Data.Content,
			AuthorName:        doc.Data.AuthorName,
			AuthorFingerprint: doc.Data.AuthorFingerprint,
			CreatedAt:         doc.Data.CreatedAt.UTC(),
		})
	}
	return comments, nil
}

// ReactionRepository implements repositories.ReactionRepository using deterministic document ids.
type ReactionRepository struct {
	base *pfirestore.Collection[reactionDocument]
}

// NewReactionRepository constructs a Firestore-backed reaction repository.
func NewReactionRepository(provider *pfirestore.Provider) (*ReactionRepository, error) {
	if provider == nil {
		return nil, errors.New("reaction repository requires firestore provider")
	}
	return &ReactionRepository{base: pfirestore.NewCollection[reactionDocument](provider, reactionsCollection)}, nil
}

// Upsert creates the reaction unless the same fingerprint already left that emoji, in which
// case the stored reaction is returned with created=false.
func (r *ReactionRepository) Upsert(ctx context.Context, reaction domain.Reaction) (domain.Reaction, bool, error) {
	if r == nil || r.base == nil {
		return domain.Reaction{}, false, errors.New("reaction repository not initialised")
	}
	reaction.ID = repositories.ReactionID(reaction.MemoryID, reaction.Emoji, reaction.AuthorFingerprint)
	doc := reactionDocument{
		MemoryID:          reaction.MemoryID,
		Emoji:             reaction.Emoji,
		AuthorFingerprint: reaction.AuthorFingerprint,
		CreatedAt:         reaction.CreatedAt.UTC(),
	}
	err := r.base.Create(ctx, reaction.ID, doc)
	if err == nil {
		return reaction, true, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		return domain.Reaction{}, false, err
	}
	existing, err := r.base.Get(ctx, reaction.ID)
	if err != nil {
		return domain.Reaction{}, false, err
	}
	return decodeReaction(existing.ID, existing.Data), false, nil
}

// ListByMemory returns every reaction left on the memory.
func (r *ReactionRepository) ListByMemory(ctx context.Context, memoryID string) ([]domain.Reaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("reaction repository not initialised")
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return nil, errors.New("reaction repository: memory id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("memoryId", "==", memoryID)
	})
	if err != nil {
		return nil, err
	}
	reactions := make([]domain.Reaction, 0, len(docs))
	for _, doc := range docs {
		reactions = append(reactions, decodeReaction(doc.ID, doc.Data))
	}
	return reactions, nil
}

func decodeReaction(id string, doc reactionDocument) domain.Reaction {
	return domain.Reaction{
		ID:                id,
		MemoryID:          doc.MemoryID,
		Emoji:             doc.Emoji,
		AuthorFingerprint: doc.AuthorFingerprint,
		CreatedAt:         doc.CreatedAt.UTC(),
	}
}
