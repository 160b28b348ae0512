package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/tessera/core"
)

const (
	// TopicTokenInvalidated receives core.TokenInvalidated payloads
	TopicTokenInvalidated = "tessera.token.invalidated"

	// TopicEmailVerification receives core.EmailVerificationRequested payloads
	TopicEmailVerification = "tessera.email.verification_requested"
)

// WatermillPublisher implements ports.EventPublisher using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishInvalidated publishes a token invalidation event
func (p *WatermillPublisher) PublishInvalidated(ctx context.Context, event core.TokenInvalidated) error {
	return p.publish(ctx, TopicTokenInvalidated, event, map[string]string{"policy": event.Policy})
}

// PublishEmailVerification publishes an email verification request
func (p *WatermillPublisher) PublishEmailVerification(ctx context.Context, event core.EmailVerificationRequested) error {
	return p.publish(ctx, TopicEmailVerification, event, nil)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any, metadata map[string]string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishInvalidated(context.Context, core.TokenInvalidated) error { return nil }

func (NopPublisher) PublishEmailVerification(context.Context, core.EmailVerificationRequested) error {
	return nil
}
