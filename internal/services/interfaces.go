package services

import (
	"context"
	"io"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	pstorage "github.com/Piyushhbhutoria/memory-wall/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Wall               = domain.Wall
	Memory             = domain.Memory
	Comment            = domain.Comment
	Reaction           = domain.Reaction
	ReactionCount      = domain.ReactionCount
	SecurityEvent      = domain.SecurityEvent
	UploadedMedia      = domain.UploadedMedia
	SystemHealthReport = domain.SystemHealthReport
)

// WallService manages host walls.
type WallService interface {
	CreateWall(ctx context.Context, cmd CreateWallCommand) (Wall, error)
	GetWall(ctx context.Context, wallID string) (Wall, error)
	ListHostWalls(ctx context.Context, hostUID string, pager Pagination) (domain.CursorPage[Wall], error)
	UpdateWall(ctx context.Context, cmd UpdateWallCommand) (Wall, error)
	DeleteWall(ctx context.Context, cmd DeleteWallCommand) error
	ExpireWalls(ctx context.Context, now time.Time, batch int) (int, error)
}

// MemoryService handles visitor contributions.
type MemoryService interface {
	CreateMemory(ctx context.Context, cmd CreateMemoryCommand) (Memory, error)
	ListMemories(ctx context.Context, wallID string, pager Pagination) (domain.CursorPage[Memory], error)
}

// CommentService handles comments on memories.
type CommentService interface {
	CreateComment(ctx context.Context, cmd CreateCommentCommand) (Comment, error)
	ListComments(ctx context.Context, memoryID string) ([]Comment, error)
}

// ReactionService handles emoji reactions on memories.
type ReactionService interface {
	React(ctx context.Context, cmd ReactCommand) (Reaction, bool, error)
	ListReactions(ctx context.Context, memoryID string) ([]ReactionCount, error)
}

// MediaService stores visitor uploads.
type MediaService interface {
	UploadMedia(ctx context.Context, cmd UploadMediaCommand) (UploadedMedia, error)
}

// SecurityEventService records guard rejections and fans them out.
type SecurityEventService interface {
	Record(ctx context.Context, event SecurityEvent) (SecurityEvent, error)
}

// SystemService exposes health and build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CreateWallCommand opens a wall for a host.
type CreateWallCommand struct {
	HostUID string
	Request guard.CreateWallRequest
}

// UpdateWallCommand changes a wall the actor owns.
type UpdateWallCommand struct {
	ActorUID string
	IsAdmin  bool
	WallID   string
	Request  guard.UpdateWallRequest
}

// DeleteWallCommand removes a wall the actor owns.
type DeleteWallCommand struct {
	ActorUID string
	IsAdmin  bool
	WallID   string
}

// CreateMemoryCommand adds a visitor memory to a wall.
type CreateMemoryCommand struct {
	WallID      string
	Fingerprint string
	Request     guard.CreateMemoryRequest
}

// CreateCommentCommand adds a visitor comment to a memory.
type CreateCommentCommand struct {
	MemoryID    string
	Fingerprint string
	Request     guard.CreateCommentRequest
}

// ReactCommand leaves an emoji on a memory.
type ReactCommand struct {
	MemoryID    string
	Fingerprint string
	Request     guard.CreateReactionRequest
}

// UploadMediaCommand carries a visitor upload. Body is read once.
type UploadMediaCommand struct {
	WallID      string
	Fingerprint string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SecurityEventMessage is the Pub/Sub and alert payload of a security event.
type SecurityEventMessage struct {
	EventID     string            `json:"eventId"`
	EventType   string            `json:"eventType"`
	Description string            `json:"description"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// SecurityEventPublisher publishes security events to downstream consumers.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, message SecurityEventMessage) (string, error)
}

// SecurityAlertNotifier pages humans about suspicious activity.
type SecurityAlertNotifier interface {
	NotifySecurityEvent(ctx context.Context, message SecurityEventMessage) error
}

// SecurityEventRecorder is the narrow view the write services use to report rejections.
type SecurityEventRecorder interface {
	Record(ctx context.Context, event SecurityEvent) (SecurityEvent, error)
}

// ActionLimiter is the sliding-window check applied before each visitor write.
type ActionLimiter interface {
	CheckAndRecordAction(ctx context.Context, identifier, action string, limit guard.Limit) guard.Decision
}

// MediaObjectStore writes and removes wall media objects.
type MediaObjectStore interface {
	Put(ctx context.Context, objectPath, contentType string, body io.Reader) (pstorage.StoredObject, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Rate-limited actions.
const (
	ActionMemoryCreation  = "memory_creation"
	ActionCommentCreation = "comment_creation"
	ActionReaction        = "reaction"
	ActionMediaUpload     = "media_upload"
)
