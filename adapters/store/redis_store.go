package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

const (
	defaultAllowlistPrefix = "tessera:allowlist:"
	defaultBlocklistPrefix = "tessera:blocklist:"
)

// RedisAllowlist is a Redis implementation of ports.Allowlist.
// Each token is stored under its sha256 hash, holding the subject id and
// expiring at the token's expiry. Take needs GETDEL (Redis 6.2+).
type RedisAllowlist struct {
	client redis.UniversalClient
	prefix string
	clock  ports.Clock
}

// NewRedisAllowlist creates a new Redis allowlist
func NewRedisAllowlist(client redis.UniversalClient, c ports.Clock) *RedisAllowlist {
	if c == nil {
		c = clock.System{}
	}
	return &RedisAllowlist{
		client: client,
		prefix: defaultAllowlistPrefix,
		clock:  c,
	}
}

// Add stores the token with a TTL ending at expiresAt
func (s *RedisAllowlist) Add(ctx context.Context, token, subjectID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		// redis treats a zero ttl as "keep forever"
		return nil
	}

	if err := s.client.Set(ctx, s.key(token), subjectID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to allowlist: %w", err)
	}

	return nil
}

// Lookup returns the subject of a live token
func (s *RedisAllowlist) Lookup(ctx context.Context, token string) (string, bool, error) {
	subjectID, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up token: %w", err)
	}

	return subjectID, true, nil
}

// Delete removes the token
func (s *RedisAllowlist) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Take deletes the token and returns its subject in a single GETDEL
func (s *RedisAllowlist) Take(ctx context.Context, token string) (string, bool, error) {
	subjectID, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to take token: %w", err)
	}

	return subjectID, true, nil
}

// Ping checks the connection
func (s *RedisAllowlist) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisAllowlist) key(token string) string {
	return s.prefix + core.HashToken(token)
}

// RedisBlocklist is a Redis implementation of ports.Blocklist.
// Keys are sha256 hashes of the tokens so raw credentials never sit in Redis.
type RedisBlocklist struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBlocklist creates a new Redis blocklist
func NewRedisBlocklist(client redis.UniversalClient) *RedisBlocklist {
	return &RedisBlocklist{
		client: client,
		prefix: defaultBlocklistPrefix,
	}
}

// Add marks a token as revoked for ttl
func (s *RedisBlocklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blocklist: %w", err)
	}

	return nil
}

// Contains checks if a token is revoked
func (s *RedisBlocklist) Contains(ctx context.Context, token string) (bool, error) {
	val, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blocklist: %w", err)
	}

	return val > 0, nil
}

// Ping checks the connection
func (s *RedisBlocklist) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisBlocklist) key(token string) string {
	return s.prefix + core.HashToken(token)
}
