package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	pfirestore "github.com/Piyushhbhutoria/memory-wall/internal/platform/firestore"
)

const securityEventsCollection = "securityEvents"

type securityEventDocument struct {
	EventType   string            `firestore:"eventType"`
	Description string            `firestore:"description"`
	Fingerprint string            `firestore:"userFingerprint,omitempty"`
	Metadata    map[string]string `firestore:"metadata,omitempty"`
	OccurredAt  time.Time         `firestore:"createdAt"`
}

// SecurityEventRepository appends guard audit records.
type SecurityEventRepository struct {
	base *pfirestore.Collection[securityEventDocument]
}

// NewSecurityEventRepository constructs a Firestore-backed security event repository.
func NewSecurityEventRepository(provider *pfirestore.Provider) (*SecurityEventRepository, error) {
	if provider == nil {
		return nil, errors.New("security event repository requires firestore provider")
	}
	return &SecurityEventRepository{base: pfirestore.NewCollection[securityEventDocument](provider, securityEventsCollection)}, nil
}

// Insert writes the event under its id.
func (r *SecurityEventRepository) Insert(ctx context.Context, event domain.SecurityEvent) error {
	if r == nil || r.base == nil {
		return errors.New("security event repository not initialised")
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		return errors.New("security event repository: event id is required")
	}
	return r.base.Create(ctx, id, securityEventDocument{
		EventType:   event.EventType,
		Description: event.Description,
		Fingerprint: event.Fingerprint,
		Metadata:    event.Metadata,
		OccurredAt:  event.OccurredAt.UTC(),
	})
}
