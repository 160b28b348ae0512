package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/adapters/events"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

// TokenService creates, verifies and invalidates tokens according to a core.Policy.
// It keeps no mutable state of its own and is safe for concurrent use.
type TokenService struct {
	tokenizer ports.Tokenizer
	blocklist ports.Blocklist
	allowlist ports.Allowlist
	eventPub  ports.EventPublisher
	clock     ports.Clock
	random    io.Reader
	logger    *zap.Logger
}

// Option configures a TokenService
type Option func(*TokenService)

// WithClock sets the clock used to compute opaque token expiry
func WithClock(c ports.Clock) Option {
	return func(s *TokenService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRandom sets the randomness source for opaque tokens
func WithRandom(r io.Reader) Option {
	return func(s *TokenService) {
		if r != nil {
			s.random = r
		}
	}
}

// WithEventPublisher publishes invalidation events
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *TokenService) {
		if p != nil {
			s.eventPub = p
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *TokenService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTokenService creates a new token service
func NewTokenService(
	tokenizer ports.Tokenizer,
	blocklist ports.Blocklist,
	allowlist ports.Allowlist,
	opts ...Option,
) (*TokenService, error) {
	if tokenizer == nil || blocklist == nil || allowlist == nil {
		return nil, errors.New("tokenizer, blocklist and allowlist are required")
	}

	s := &TokenService{
		tokenizer: tokenizer,
		blocklist: blocklist,
		allowlist: allowlist,
		eventPub:  events.NopPublisher{},
		clock:     clock.System{},
		random:    rand.Reader,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range core.Policies() {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Create issues a new token for subjectID
func (s *TokenService) Create(ctx context.Context, policy core.Policy, subjectID string) (string, error) {
	if subjectID == "" {
		return "", core.NewTokenError(policy, core.ErrInvalidSubject, nil)
	}

	switch policy.Kind {
	case core.KindSigned:
		return s.createSigned(policy, subjectID)
	case core.KindOpaque:
		return s.createOpaque(ctx, policy, subjectID)
	default:
		return "", fmt.Errorf("%s: unknown token kind %v", policy.Name, policy.Kind)
	}
}

// Verify checks the token and returns the subject it was issued to
func (s *TokenService) Verify(ctx context.Context, policy core.Policy, token string) (string, error) {
	switch policy.Kind {
	case core.KindSigned:
		return s.verifySigned(ctx, policy, token)
	case core.KindOpaque:
		return s.verifyOpaque(ctx, policy, token)
	default:
		return "", fmt.Errorf("%s: unknown token kind %v", policy.Name, policy.Kind)
	}
}

// Invalidate revokes the token. Invalidating twice is not an error.
func (s *TokenService) Invalidate(ctx context.Context, policy core.Policy, token string) error {
	if !policy.Revocable() {
		return core.NewTokenError(policy, core.ErrNotRevocable, nil)
	}

	var err error
	switch policy.Revocation {
	case core.RevocationBlocklist:
		// the token cannot outlive its ttl, so neither does the entry
		err = s.blocklist.Add(ctx, token, policy.TTL)
	case core.RevocationAllowlist:
		err = s.allowlist.Delete(ctx, token)
	}
	if err != nil {
		return core.NewTokenError(policy, core.ErrStoreOperationFailed, err)
	}

	s.invalidated(ctx, policy, token)
	return nil
}

// Consume verifies and invalidates an allowlisted token in one atomic store call.
// Concurrent calls with the same token succeed at most once.
func (s *TokenService) Consume(ctx context.Context, policy core.Policy, token string) (string, error) {
	if policy.Revocation != core.RevocationAllowlist {
		return "", core.NewTokenError(policy, core.ErrNotRevocable, errors.New("only allowlisted tokens can be consumed"))
	}
	if token == "" {
		return "", core.NewTokenError(policy, core.ErrNotProvided, nil)
	}

	subjectID, found, err := s.allowlist.Take(ctx, token)
	if err != nil {
		return "", core.NewTokenError(policy, core.ErrStoreOperationFailed, err)
	}
	if !found || subjectID == "" {
		return "", core.NewTokenError(policy, core.ErrInvalidOrExpired, nil)
	}

	s.invalidated(ctx, policy, token)
	return subjectID, nil
}

func (s *TokenService) invalidated(ctx context.Context, policy core.Policy, token string) {
	event := core.TokenInvalidated{
		Policy:    policy.Key,
		TokenHash: core.HashToken(token),
		At:        s.clock.Now(),
	}
	s.logger.Info("token invalidated",
		zap.String("policy", policy.Key),
		zap.String("token_hash", event.TokenHash))

	// the token is already revoked in the store, which is the part that matters
	if err := s.eventPub.PublishInvalidated(ctx, event); err != nil {
		s.logger.Warn("failed to publish invalidation event", zap.String("policy", policy.Key), zap.Error(err))
	}
}

func (s *TokenService) createSigned(policy core.Policy, subjectID string) (string, error) {
	token, err := s.tokenizer.Sign(core.Claims{SubjectID: subjectID, Audience: policy.Key}, policy.TTL)
	if err != nil {
		return "", fmt.Errorf("%s: failed to create token: %w", policy.Name, err)
	}
	return token, nil
}

func (s *TokenService) createOpaque(ctx context.Context, policy core.Policy, subjectID string) (string, error) {
	token, err := core.NewOpaqueToken(s.random)
	if err != nil {
		return "", fmt.Errorf("%s: failed to create token: %w", policy.Name, err)
	}

	expiresAt := s.clock.Now().Add(policy.TTL)

	// the token is only handed out once the store has acknowledged it
	if err := s.allowlist.Add(ctx, token, subjectID, expiresAt); err != nil {
		return "", core.NewTokenError(policy, core.ErrStoreOperationFailed, err)
	}

	return token, nil
}

func (s *TokenService) verifySigned(ctx context.Context, policy core.Policy, token string) (string, error) {
	// a revoked token must be refused before its claims are ever decoded
	if policy.Revocation == core.RevocationBlocklist {
		revoked, err := s.blocklist.Contains(ctx, token)
		if err != nil {
			return "", core.NewTokenError(policy, core.ErrStoreOperationFailed, err)
		}
		if revoked {
			return "", core.NewTokenError(policy, core.ErrRevoked, nil)
		}
	}

	claims, err := s.tokenizer.Parse(token, policy.Key)
	if err != nil {
		return "", core.NewTokenError(policy, core.ErrVerificationFailed, err)
	}
	if claims.SubjectID == "" {
		return "", core.NewTokenError(policy, core.ErrVerificationFailed, errors.New("missing subject"))
	}

	return claims.SubjectID, nil
}

func (s *TokenService) verifyOpaque(ctx context.Context, policy core.Policy, token string) (string, error) {
	if token == "" {
		return "", core.NewTokenError(policy, core.ErrNotProvided, nil)
	}

	subjectID, found, err := s.allowlist.Lookup(ctx, token)
	if err != nil {
		return "", core.NewTokenError(policy, core.ErrStoreOperationFailed, err)
	}
	if !found || subjectID == "" {
		return "", core.NewTokenError(policy, core.ErrInvalidOrExpired, nil)
	}

	return subjectID, nil
}

// Handle binds the service to one policy
type Handle struct {
	svc    *TokenService
	policy core.Policy
}

// Handle returns the lifecycle operations for policy
func (s *TokenService) Handle(policy core.Policy) Handle {
	return Handle{svc: s, policy: policy}
}

// Access returns the access token operations
func (s *TokenService) Access() Handle { return s.Handle(core.AccessPolicy) }

// Refresh returns the refresh token operations
func (s *TokenService) Refresh() Handle { return s.Handle(core.RefreshPolicy) }

// EmailVerification returns the email verification token operations
func (s *TokenService) EmailVerification() Handle { return s.Handle(core.EmailVerificationPolicy) }

// Policy returns the bound policy
func (h Handle) Policy() core.Policy { return h.policy }

// Create issues a token for subjectID
func (h Handle) Create(ctx context.Context, subjectID string) (string, error) {
	return h.svc.Create(ctx, h.policy, subjectID)
}

// Verify returns the subject of a valid token
func (h Handle) Verify(ctx context.Context, token string) (string, error) {
	return h.svc.Verify(ctx, h.policy, token)
}

// Invalidate revokes the token; policies without a revocation store return core.ErrNotRevocable
func (h Handle) Invalidate(ctx context.Context, token string) error {
	return h.svc.Invalidate(ctx, h.policy, token)
}

// Consume returns the subject of a valid allowlisted token and removes it
func (h Handle) Consume(ctx context.Context, token string) (string, error) {
	return h.svc.Consume(ctx, h.policy, token)
}
