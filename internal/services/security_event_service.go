package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

const (
	securityEventIDPrefix   = "sev_"
	defaultSinkTimeout      = 5 * time.Second
	maxEventDescription     = 500
	securityLoggerEventSink = "security.sink_failed"

	// SinkPubSub and SinkDiscord name the fan-out targets in failure callbacks.
	SinkPubSub  = "pubsub"
	SinkDiscord = "discord"
)

// SecurityEventServiceDeps bundles collaborators required to construct a SecurityEventService.
type SecurityEventServiceDeps struct {
	Repository  repositories.SecurityEventRepository
	Publisher   SecurityEventPublisher
	Notifier    SecurityAlertNotifier
	AlertTypes  []string
	SinkTimeout time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	// OnSinkFailure is called once per failed best-effort delivery.
	OnSinkFailure func(sink string)
}

// SecurityEvents records events and fans them out. Deliveries to Pub/Sub and Discord run in the
// background; Wait blocks until they finish.
type SecurityEvents struct {
	repo          repositories.SecurityEventRepository
	publisher     SecurityEventPublisher
	notifier      SecurityAlertNotifier
	alertTypes    map[string]struct{}
	sinkTimeout   time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
	onSinkFailure func(string)
	inflight      sync.WaitGroup
}

var _ SecurityEventService = (*SecurityEvents)(nil)

// NewSecurityEventService wires dependencies into the security event service.
func NewSecurityEventService(deps SecurityEventServiceDeps) (*SecurityEvents, error) {
	if deps.Repository == nil {
		return nil, errors.New("security event service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return securityEventIDPrefix + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	onSinkFailure := deps.OnSinkFailure
	if onSinkFailure == nil {
		onSinkFailure = func(string) {}
	}
	timeout := deps.SinkTimeout
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}
	alertTypes := deps.AlertTypes
	if len(alertTypes) == 0 {
		alertTypes = []string{domain.SecurityEventSuspiciousActivity}
	}
	alertSet := make(map[string]struct{}, len(alertTypes))
	for _, t := range alertTypes {
		alertSet[strings.TrimSpace(t)] = struct{}{}
	}

	return &SecurityEvents{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		alertTypes:    alertSet,
		sinkTimeout:   timeout,
		newID:         idGen,
		logger:        logger,
		onSinkFailure: onSinkFailure,
	}, nil
}

// Record persists the event and schedules its best-effort deliveries.
func (s *SecurityEvents) Record(ctx context.Context, event SecurityEvent) (SecurityEvent, error) {
	event.EventType = strings.TrimSpace(event.EventType)
	if event.EventType == "" {
		return SecurityEvent{}, fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if event.ID == "" {
		event.ID = s.newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock()
	}
	event.Fingerprint = strings.TrimSpace(strings.ToValidUTF8(event.Fingerprint, ""))
	event.Description = strings.TrimSpace(strings.ToValidUTF8(event.Description, ""))
	if len(event.Metadata) > 0 {
		meta := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			meta[strings.ToValidUTF8(k, "")] = strings.ToValidUTF8(v, "")
		}
		event.Metadata = meta
	}
	if len(event.Description) > maxEventDescription {
		event.Description = strings.ToValidUTF8(event.Description[:maxEventDescription], "")
	}

	if err := s.repo.Insert(ctx, event); err != nil {
		return SecurityEvent{}, mapRepositoryError(err, nil)
	}
	s.fanOut(ctx, event)
	return event, nil
}

// Wait blocks until pending deliveries have finished.
func (s *SecurityEvents) Wait() {
	s.inflight.Wait()
}

// SuspicionNotifier adapts the service onto the rate limiter's suspicious-activity hook.
func (s *SecurityEvents) SuspicionNotifier() guard.SuspicionNotifier {
	return guard.SuspicionNotifierFunc(func(ctx context.Context, activity guard.SuspiciousActivity) {
		action := activity.Action
		if action == "" {
			action = "default"
		}
		_, err := s.Record(ctx, SecurityEvent{
			EventType: domain.SecurityEventSuspiciousActivity,
			Description: fmt.Sprintf("%d attempts within %s for %s (limit %d)",
				activity.Attempts, activity.Limit.Window, action, activity.Limit.MaxEvents),
			Fingerprint: activity.Identifier,
			Metadata: map[string]string{
				"action":   action,
				"key":      activity.Key,
				"attempts": fmt.Sprint(activity.Attempts),
			},
			OccurredAt: activity.ObservedAt,
		})
		if err != nil {
			s.logger(ctx, "security.record_failed", map[string]any{
				"eventType": domain.SecurityEventSuspiciousActivity,
				"error":     err.Error(),
			})
		}
	})
}

func (s *SecurityEvents) fanOut(ctx context.Context, event SecurityEvent) {
	_, alert := s.alertTypes[event.EventType]
	if s.publisher == nil && (s.notifier == nil || !alert) {
		return
	}
	message := SecurityEventMessage{
		EventID:     event.ID,
		EventType:   event.EventType,
		Description: event.Description,
		Fingerprint: event.Fingerprint,
		Metadata:    event.Metadata,
		OccurredAt:  event.OccurredAt,
	}

	// detach from the request so deliveries survive the response
	base := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(base, s.sinkTimeout)
		defer cancel()

		if s.publisher != nil {
			if _, err := s.publisher.PublishSecurityEvent(ctx, message); err != nil {
				s.sinkFailed(ctx, SinkPubSub, event, err)
			}
		}
		if s.notifier != nil && alert {
			if err := s.notifier.NotifySecurityEvent(ctx, message); err != nil {
				s.sinkFailed(ctx, SinkDiscord, event, err)
			}
		}
	}()
}

func (s *SecurityEvents) sinkFailed(ctx context.Context, sink string, event SecurityEvent, err error) {
	s.onSinkFailure(sink)
	s.logger(ctx, securityLoggerEventSink, map[string]any{
		"sink":      sink,
		"eventId":   event.ID,
		"eventType": event.EventType,
		"error":     err.Error(),
	})
}
