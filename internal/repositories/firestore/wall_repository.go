package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/pagination"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const wallsCollection = "walls"

type wallDocument struct {
	Name          string    `firestore:"name"`
	ThemeColor    string    `firestore:"themeColor"`
	CoverPhotoURL string    `firestore:"coverPhotoUrl,omitempty"`
	HostUserID    string    `firestore:"hostUserId"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
	ExpiresAt     time.Time `firestore:"expiresAt"`
	IsPaid        bool      `firestore:"isPaid"`
	MaxMemories   int64     `firestore:"maxMemories"`
	MemoryCount   int64     `firestore:"memoryCount"`
	IsActive      bool      `firestore:"isActive"`
}

// WallRepository implements repositories.WallRepository on Firestore.
type WallRepository struct {
	base *pfirestore.Collection[wallDocument]
}

// NewWallRepository constructs a Firestore-backed wall repository.
func NewWallRepository(provider *pfirestore.Provider) (*WallRepository, error) {
	if provider == nil {
		return nil, errors.New("wall repository requires firestore provider")
	}
	return &WallRepository{base: pfirestore.NewCollection[wallDocument](provider, wallsCollection)}, nil
}

// Insert creates the wall document; an existing id is a conflict.
func (r *WallRepository) Insert(ctx context.Context, wall domain.Wall) error {
	if r == nil || r.base == nil {
		return errors.New("wall repository not initialised")
	}
	id := strings.TrimSpace(wall.ID)
	if id == "" {
		return errors.New("wall repository: wall id is required")
	}
	return r.base.Create(ctx, id, encodeWall(wall))
}

// FindByID fetches a single wall.
func (r *WallRepository) FindByID(ctx context.Context, wallID string) (domain.Wall, error) {
	if r == nil || r.base == nil {
		return domain.Wall{}, errors.New("wall repository not initialised")
	}
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return domain.Wall{}, errors.New("wall repository: wall id is required")
	}
	doc, err := r.base.Get(ctx, wallID)
	if err != nil {
		return domain.Wall{}, err
	}
	return decodeWall(doc.ID, doc.Data), nil
}

// ListByHost returns the host's walls, newest first.
func (r *WallRepository) ListByHost(ctx context.Context, hostUID string, pager domain.Pagination) (domain.CursorPage[domain.Wall], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Wall]{}, errors.New("wall repository not initialised")
	}
	hostUID = strings.TrimSpace(hostUID)
	if hostUID == "" {
		return domain.CursorPage[domain.Wall]{}, errors.New("wall repository: host uid is required")
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Wall]{}, fmt.Errorf("wall repository: %w", err)
	}
	limit, fetchLimit := pageLimits(pager.PageSize)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("hostUserId", "==", hostUID).
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
		return domain.CursorPage[domain.Wall]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[limit-1]
		nextToken = pagination.EncodeToken(pagination.Cursor{At: last.Data.CreatedAt, ID: last.ID})
		docs = docs[:limit]
	}
	items := make([]domain.Wall, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeWall(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Wall]{Items: items, NextPageToken: nextToken}, nil
}

// Update applies the non-nil fields and returns the stored wall.
func (r *WallRepository) Update(ctx context.Context, wallID string, update repositories.WallUpdate) (domain.Wall, error) {
	if r == nil || r.base == nil {
		return domain.Wall{}, errors.New("wall repository not initialised")
	}
	wallID = strings.TrimSpace(wallID)
	if wallID == "" {
		return domain.Wall{}, errors.New("wall repository: wall id is required")
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt.UTC()}}
	if update.ThemeColor != nil {
		updates = append(updates, firestore.Update{Path: "themeColor", Value: *update.ThemeColor})
	}
	if update.IsActive != nil {
		updates = append(updates, firestore.Update{Path: "isActive", Value: *update.IsActive})
	}
	if err := r.base.Update(ctx, wallID, updates); err != nil {
		return domain.Wall{}, err
	}
	return r.FindByID(ctx, wallID)
}

// Delete removes the wall document.
func (r *WallRepository) Delete(ctx context.Context, wallID string) error {
	if r == nil || r.base == nil {
		return errors.New("wall repository not initialised")
	}
	return r.base.Delete(ctx, strings.TrimSpace(wallID))
}

// ListExpired returns active walls whose expiresAt is at or before now, oldest first.
func (r *WallRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Wall, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("wall repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isActive", "==", true).
			Where("expiresAt", "<=", now.UTC()).
			OrderBy("expiresAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	walls := make([]domain.Wall, 0, len(docs))
	for _, doc := range docs {
		walls = append(walls, decodeWall(doc.ID, doc.Data))
	}
	return walls, nil
}

func encodeWall(wall domain.Wall) wallDocument {
	return wallDocument{
		Name:          wall.Name,
		ThemeColor:    wall.ThemeColor,
		CoverPhotoURL: wall.CoverPhotoURL,
		HostUserID:    wall.HostUserID,
		CreatedAt:     wall.CreatedAt.UTC(),
		UpdatedAt:     wall.CreatedAt.UTC(),
		ExpiresAt:     wall.ExpiresAt.UTC(),
		IsPaid:        wall.IsPaid,
		MaxMemories:   int64(wall.MaxMemories),
		MemoryCount:   int64(wall.MemoryCount),
		IsActive:      wall.IsActive,
	}
}

func decodeWall(id string, doc wallDocument) domain.Wall {
	return domain.Wall{
		ID:            id,
		Name:          doc.Name,
		ThemeColor:    doc.ThemeColor,
		CoverPhotoURL: doc.CoverPhotoURL,
		HostUserID:    doc.HostUserID,
		CreatedAt:     doc.CreatedAt.UTC(),
		ExpiresAt:     doc.ExpiresAt.UTC(),
		IsPaid:        doc.IsPaid,
		MaxMemories:   int(doc.MaxMemories),
		MemoryCount:   int(doc.MemoryCount),
		IsActive:      doc.IsActive,
	}
}

// pageLimits returns the page size and the size to fetch, one extra to detect a next page.
func pageLimits(pageSize int) (int, int) {
	if pageSize <= 0 {
		return 0, 0
	}
	return pageSize, pageSize + 1
}
