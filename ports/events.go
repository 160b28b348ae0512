package ports

import (
	"context"

	"github.com/layer-3/tessera/core"
)

// EventPublisher publishes token lifecycle events to other services
type EventPublisher interface {
	PublishInvalidated(ctx context.Context, event core.TokenInvalidated) error
	PublishEmailVerification(ctx context.Context, event core.EmailVerificationRequested) error
}
