package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Piyushhbhutoria/memory-wall/internal/services"
)

// PubSubSecurityEventPublisher sends security events to a Pub/Sub topic. Events from one visitor
// share an ordering key so a subscriber sees their escalation in sequence.
type PubSubSecurityEventPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubSecurityEventPublisher enables message ordering on topic.
func NewPubSubSecurityEventPublisher(topic *pubsub.Topic) (*PubSubSecurityEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub security event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubSecurityEventPublisher{topic: topic}, nil
}

// PublishSecurityEvent blocks until the server acknowledges the message. eventType, action and
// fingerprint travel as attributes for subscription filters.
func (p *PubSubSecurityEventPublisher) PublishSecurityEvent(ctx context.Context, event services.SecurityEventMessage) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode security event %s: %w", event.EventID, err)
	}

	attrs := map[string]string{}
	for key, value := range map[string]string{
		"eventId":     event.EventID,
		"eventType":   event.EventType,
		"action":      event.Metadata["action"],
		"fingerprint": event.Fingerprint,
	} {
		if value = strings.TrimSpace(value); value != "" {
			attrs[key] = value
		}
	}

	orderingKey := attrs["fingerprint"]
	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: body, Attributes: attrs, OrderingKey: orderingKey}).Get(ctx)
	if err != nil {
		if orderingKey != "" {
			p.topic.ResumePublish(orderingKey)
		}
		return "", fmt.Errorf("publish security event %s: %w", event.EventID, err)
	}
	return id, nil
}
