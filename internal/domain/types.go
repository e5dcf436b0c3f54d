package domain

import (
	"time"
)

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Wall is a host-owned board that visitors contribute memories to.
type Wall struct {
	ID            string
	Name          string
	ThemeColor    string
	CoverPhotoURL string
	HostUserID    string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	IsPaid        bool
	MaxMemories   int
	MemoryCount   int
	IsActive      bool
}

// AcceptsContributions reports whether visitors may still add to the wall at now.
func (w Wall) AcceptsContributions(now time.Time) bool {
	return w.IsActive && now.Before(w.ExpiresAt)
}

// IsFull reports whether the wall reached its memory cap.
func (w Wall) IsFull() bool {
	return w.MaxMemories > 0 && w.MemoryCount >= w.MaxMemories
}

// Memory is one visitor contribution on a wall.
type Memory struct {
	ID                string
	WallID            string
	Type              string
	Content           string
	MediaURL          string
	MediaType         string
	AuthorName        string
	AuthorFingerprint string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Comment is a visitor reply on a memory.
type Comment struct {
	ID                string
	MemoryID          string
	Content           string
	AuthorName        string
	AuthorFingerprint string
	CreatedAt         time.Time
}

// Reaction is one emoji from one visitor on one memory.
type Reaction struct {
	ID                string
	MemoryID          string
	Emoji             string
	AuthorFingerprint string
	CreatedAt         time.Time
}

// ReactionCount aggregates reactions per emoji.
type ReactionCount struct {
	Emoji string
	Count int
}

// Security event types recorded by the abuse guard.
const (
	SecurityEventRateLimitExceeded  = "rate_limit_exceeded"
	SecurityEventSuspiciousActivity = "suspicious_activity"
	SecurityEventUnsafeContent      = "unsafe_content"
	SecurityEventInvalidFile        = "invalid_file"
)

// SecurityEvent is an audit record of a blocked or suspicious action.
type SecurityEvent struct {
	ID          string
	EventType   string
	Description string
	Fingerprint string
	Metadata    map[string]string
	OccurredAt  time.Time
}

// UploadedMedia is the result of a media upload.
type UploadedMedia struct {
	URL        string
	Path       string
	MemoryType string
	MediaType  string
	Size       int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
