package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/pagination"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const memoriesCollection = "memories"

type memoryDocument struct {
	WallID            string    `firestore:"wallId"`
	Type              string    `firestore:"type"`
	Content           string    `firestore:"content,omitempty"`
	MediaURL          string    `firestore:"mediaUrl,omitempty"`
	MediaType         string    `firestore:"mediaType,omitempty"`
	AuthorName        string    `firestore:"authorName"`
	AuthorFingerprint string    `firestore:"authorFingerprint,omitempty"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// MemoryRepository implements repositories.MemoryRepository. Inserts run in a transaction with
// the parent wall so the memory cap holds under concurrent writers.
type MemoryRepository struct {
	provider  *pfirestore.Provider
	memories  *pfirestore.Collection[memoryDocument]
	walls     *pfirestore.Collection[wallDocument]
	comments  *pfirestore.Collection[commentDocument]
	reactions *pfirestore.Collection[reactionDocument]
}

// NewMemoryRepository constructs a Firestore-backed memory repository.
func NewMemoryRepository(provider *pfirestore.Provider) (*MemoryRepository, error) {
	if provider == nil {
		return nil, errors.New("memory repository requires firestore provider")
	}
	return &MemoryRepository{
		provider:  provider,
		memories:  pfirestore.NewCollection[memoryDocument](provider, memoriesCollection),
		walls:     pfirestore.NewCollection[wallDocument](provider, wallsCollection),
		comments:  pfirestore.NewCollection[commentDocument](provider, commentsCollection),
		reactions: pfirestore.NewCollection[reactionDocument](provider, reactionsCollection),
	}, nil
}

// InsertIntoWall creates the memory and bumps the wall's memoryCount atomically. It fails with a
// *repositories.WallError when the wall is missing, inactive at now, or full.
func (r *MemoryRepository) InsertIntoWall(ctx context.Context, memory domain.Memory, now time.Time) (domain.Memory, error) {
	if r == nil || r.provider == nil {
		return domain.Memory{}, errors.New("memory repository not initialised")
	}
	memory.ID = strings.TrimSpace(memory.ID)
	memory.WallID = strings.TrimSpace(memory.WallID)
	if memory.ID == "" || memory.WallID == "" {
		return domain.Memory{}, errors.New("memory repository: memory id and wall id are required")
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = memory.CreatedAt

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		wallRef, err := r.walls.Ref(ctx, memory.WallID)
		if err != nil {
			return err
		}
		memoryRef, err := r.memories.Ref(ctx, memory.ID)
		if err != nil {
			return err
		}

		snap, err := tx.Get(wallRef)
		switch status.Code(err) {
		case codes.OK:
		case codes.NotFound:
			return repositories.NewWallError(repositories.WallErrorNotFound, memory.WallID, "wall not found")
		default:
			return err
		}
		var wall wallDocument
		if err := snap.DataTo(&wall); err != nil {
			return fmt.Errorf("firestore walls decode %s: %w", memory.WallID, err)
		}

		if !decodeWall(memory.WallID, wall).AcceptsContributions(now) {
			return repositories.NewWallError(repositories.WallErrorInactive, memory.WallID, "wall is no longer active")
		}
		if wall.MaxMemories > 0 && wall.MemoryCount >= wall.MaxMemories {
			return repositories.NewWallError(repositories.WallErrorFull, memory.WallID,
				fmt.Sprintf("wall reached its limit of %d memories", wall.MaxMemories))
		}

		if err := tx.Create(memoryRef, encodeMemory(memory)); err != nil {
			return err
		}
		return tx.Update(wallRef, []firestore.Update{
			{Path: "memoryCount", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		var wallErr *repositories.WallError
		if errors.As(err, &wallErr) {
			wallErr.Op = "memories.insert"
			return domain.Memory{}, wallErr
		}
		return domain.Memory{}, pfirestore.WrapError("memories.insert", err)
	}
	return memory, nil
}

// FindByID fetches one memory.
func (r *MemoryRepository) FindByID(ctx context.Context, memoryID string) (domain.Memory, error) {
	if r == nil || r.memories == nil {
		return domain.Memory{}, errors.New("memory repository not initialised")
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return domain.Memory{}, errors.New("memory repository: memory id is required")
	}
	doc, err := r.memories.Get(ctx, memoryID)
	if err != nil {
		return domain.Memory{}, err
	}
	return decodeMemory(doc.ID, doc.Data), nil
}

// ListByWall returns a wall's memories newest first.
func (r *MemoryRepository) ListByWall(ctx context.Context, wallID string, pager domain.Pagination) (domain.CursorPage[domain.Memory], error) {
	if r == nil || r.memories == nil {
		return domain.CursorPage[domain.Memory]{}, errors.New("memory repository not initialised")
	}
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return domain.CursorPage[domain.Memory]{}, errors.New("memory repository: wall id is required")
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Memory]{}, fmt.Errorf("memory repository: %w", err)
	}
	limit, fetchLimit := pageLimits(pager.PageSize)

	docs, err := r.memories.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("wallId", "==", wallID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.At, cursor.ID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Memory]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[limit-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{At: last.Data.CreatedAt, ID: last.ID})
		docs = docs[:limit]
	}
	items := make([]domain.Memory, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeMemory(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Memory]{Items: items, NextPageToken: nextToken}, nil
}

// DeleteByWall removes every memory of the wall together with their comments and reactions.
func (r *MemoryRepository) DeleteByWall(ctx context.Context, wallID string) (int, error) {
	if r == nil || r.memories == nil {
		return 0, errors.New("memory repository not initialised")
	}
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return 0, errors.New("memory repository: wall id is required")
	}
	docs, err := r.memories.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("wallId", "==", wallID)
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, doc := range docs {
		if err := deleteWhere(ctx, r.comments, "memoryId", doc.ID); err != nil {
			return deleted, err
		}
		if err := deleteWhere(ctx, r.reactions, "memoryId", doc.ID); err != nil {
			return deleted, err
		}
		if err := r.memories.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func deleteWhere[T any](ctx context.Context, coll *pfirestore.Collection[T], field, value string) error {
	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := coll.Delete(ctx, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

func encodeMemory(memory domain.Memory) memoryDocument {
	return memoryDocument{
		WallID:            memory.WallID,
		Type:              memory.Type,
		Content:           memory.Content,
		MediaURL:          memory.MediaURL,
		MediaType:         memory.MediaType,
		AuthorName:        memory.AuthorName,
		AuthorFingerprint: memory.AuthorFingerprint,
		CreatedAt:         memory.CreatedAt.UTC(),
		UpdatedAt:         memory.UpdatedAt.UTC(),
	}
}

func decodeMemory(id string, doc memoryDocument) domain.Memory {
	return domain.Memory{
		ID:                id,
		WallID:            doc.WallID,
		Type:              doc.Type,
		Content:           doc.Content,
		MediaURL:          doc.MediaURL,
		MediaType:         doc.MediaType,
		AuthorName:        doc.AuthorName,
		AuthorFingerprint: doc.AuthorFingerprint,
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
	}
}
