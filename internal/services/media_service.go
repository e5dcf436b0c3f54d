package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	pstorage "github.com/Piyushhbhutoria/memory-wall/internal/platform/storage"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	fallbackMediaExtension = "bin"
	uploadRateLimitMessage = "Rate limit exceeded. Please wait before uploading again."
	mediaLoggerEventStored = "media.stored"
)

// MediaServiceDeps bundles collaborators required to construct a MediaService.
type MediaServiceDeps struct {
	Walls         repositories.WallRepository
	Store         MediaObjectStore
	Limiter       ActionLimiter
	Limits        VisitorLimits
	Security      SecurityEventRecorder
	Clock         func() time.Time
	UUIDGenerator func() uuid.UUID
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type mediaService struct {
	walls   repositories.WallRepository
	store   MediaObjectStore
	guard   *visitorGuard
	limit   guard.Limit
	clock   func() time.Time
	newUUID func() uuid.UUID
	logger  func(context.Context, string, map[string]any)
}

var _ MediaService = (*mediaService)(nil)

// NewMediaService wires dependencies into a concrete MediaService implementation.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.Walls == nil {
		return nil, errors.New("media service: wall repository is required")
	}
	if deps.Store == nil {
		return nil, errors.New("media service: media store is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("media service: rate limiter is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newUUID := deps.UUIDGenerator
	if newUUID == nil {
		newUUID = uuid.New
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &mediaService{
		walls: deps.Walls,
		store: deps.Store,
		guard: newVisitorGuard(deps.Limiter, deps.Security, logger, clock),
		limit: deps.Limits.withDefaults().Upload,
		clock: func() time.Time {
			return clock().UTC()
		},
		newUUID: newUUID,
		logger:  logger,
	}, nil
}

// UploadMedia validates the file, checks the wall accepts contributions, applies the upload
// window and stores the object under "<wallId>/<unixMillis>-<uuid>.<ext>".
func (s *mediaService) UploadMedia(ctx context.Context, cmd UploadMediaCommand) (UploadedMedia, error) {
	if cmd.Body == nil {
		return UploadedMedia{}, invalidInput(&guard.ValidationError{Field: "file", Reason: "Missing file"})
	}
	wallID := strings.TrimSpace(cmd.WallID)
	if wallID == "" {
		return UploadedMedia{}, invalidInput(&guard.ValidationError{Field: "wallId", Reason: "Missing wallId"})
	}
	fingerprint := strings.TrimSpace(cmd.Fingerprint)

	file := guard.FileInfo{Name: cmd.FileName, Size: cmd.Size, ContentType: cmd.ContentType}
	if outcome := guard.ValidateFile(file); !outcome.Valid {
		s.guard.reportOnce(ctx, "file", 0, SecurityEvent{
			EventType:   domain.SecurityEventInvalidFile,
			Description: outcome.Reason(),
			Fingerprint: fingerprint,
			Metadata: map[string]string{
				"wallId":      wallID,
				"fileName":    cmd.FileName,
				"contentType": cmd.ContentType,
			},
		})
		return UploadedMedia{}, invalidInput(outcome.Err)
	}

	wall, err := s.walls.FindByID(ctx, wallID)
	if err != nil {
		return UploadedMedia{}, mapRepositoryError(err, ErrWallNotFound)
	}
	now := s.clock()
	if !wall.AcceptsContributions(now) {
		return UploadedMedia{}, fmt.Errorf("%w: %s", ErrWallInactive, wallID)
	}

	if err := s.guard.admit(ctx, fingerprint, ActionMediaUpload, s.limit, uploadRateLimitMessage, map[string]string{"wallId": wallID}); err != nil {
		return UploadedMedia{}, err
	}

	ext := guard.FileExtension(cmd.FileName)
	if ext == "" {
		ext = fallbackMediaExtension
	}
	objectPath, err := pstorage.BuildMediaPath(pstorage.MediaPathParams{
		WallID:    wallID,
		UploadAt:  now,
		ObjectID:  s.newUUID(),
		Extension: ext,
	})
	if err != nil {
		return UploadedMedia{}, invalidInput(&guard.ValidationError{Field: "wallId", Reason: err.Error()})
	}

	contentType := guard.NormalizeContentType(cmd.ContentType)
	body := io.LimitReader(cmd.Body, guard.MaxFileSize+1)
	stored, err := s.store.Put(ctx, objectPath, contentType, body)
	if err != nil {
		return UploadedMedia{}, fmt.Errorf("%w: store media: %v", ErrUnavailable, err)
	}

	s.logger(ctx, mediaLoggerEventStored, map[string]any{
		"wallId": wallID,
		"path":   stored.Path,
		"size":   stored.Size,
	})
	return UploadedMedia{
		URL:        stored.URL,
		Path:       stored.Path,
		MemoryType: string(guard.MemoryTypeForContentType(contentType)),
		MediaType:  contentType,
		Size:       stored.Size,
	}, nil
}
