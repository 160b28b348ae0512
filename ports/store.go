package ports

import (
	"context"
	"time"
)

// Blocklist holds revoked signed tokens until they would have expired anyway
type Blocklist interface {
	// Add marks the raw token as revoked for at least ttl. Adding twice is a no-op.
	Add(ctx context.Context, token string, ttl time.Duration) error

	// Contains reports whether the raw token has been revoked
	Contains(ctx context.Context, token string) (bool, error)
}

// Allowlist holds the currently valid opaque tokens
type Allowlist interface {
	// Add stores the token for subjectID until expiresAt
	Add(ctx context.Context, token, subjectID string, expiresAt time.Time) error

	// Lookup returns the subject of a live token; found is false when the token
	// was never added, has expired or has been deleted
	Lookup(ctx context.Context, token string) (subjectID string, found bool, err error)

	// Delete removes the token. Deleting a missing token is not an error.
	Delete(ctx context.Context, token string) error

	// Take removes a live token and returns its subject in one atomic step.
	// Of several concurrent calls for the same token at most one finds it.
	Take(ctx context.Context, token string) (subjectID string, found bool, err error)
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}
