package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"go.uber.org/zap"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

// ErrInvalidEmail is returned when an email verification is requested for a malformed address
var ErrInvalidEmail = errors.New("invalid email address")

// AuthService composes token lifecycles into session flows
type AuthService struct {
	tokens   *TokenService
	eventPub ports.EventPublisher
	clock    ports.Clock
	logger   *zap.Logger
}

// NewAuthService creates a new authentication service on top of tokens.
// It shares the token service's clock, publisher and logger.
func NewAuthService(tokens *TokenService) *AuthService {
	return &AuthService{
		tokens:   tokens,
		eventPub: tokens.eventPub,
		clock:    tokens.clock,
		logger:   tokens.logger.Named("auth"),
	}
}

// Tokens exposes the underlying token service
func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

// Issue creates a fresh access and refresh token pair for subjectID
func (s *AuthService) Issue(ctx context.Context, subjectID string) (core.Pair, error) {
	now := s.clock.Now()

	refreshToken, err := s.tokens.Refresh().Create(ctx, subjectID)
	if err != nil {
		return core.Pair{}, err
	}

	accessToken, err := s.tokens.Access().Create(ctx, subjectID)
	if err != nil {
		// do not leave a refresh token behind that nobody received
		if delErr := s.tokens.Refresh().Invalidate(ctx, refreshToken); delErr != nil {
			s.logger.Warn("failed to drop orphaned refresh token", zap.Error(delErr))
		}
		return core.Pair{}, err
	}

	return core.Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(core.AccessPolicy.TTL),
		RefreshExpiresAt: now.Add(core.RefreshPolicy.TTL),
	}, nil
}

// Refresh consumes a refresh token and issues a new pair.
// Refresh tokens are single use: of concurrent calls with the same token only one gets a pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.Pair, error) {
	subjectID, err := s.tokens.Refresh().Consume(ctx, refreshToken)
	if err != nil {
		return core.Pair{}, err
	}

	return s.Issue(ctx, subjectID)
}

// Logout revokes the access token and, when given, the refresh token of the same subject
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	subjectID, err := s.tokens.Access().Verify(ctx, accessToken)
	if err != nil {
		return err
	}

	if refreshToken != "" {
		owner, err := s.tokens.Refresh().Verify(ctx, refreshToken)
		if err != nil && !errors.Is(err, core.ErrInvalidOrExpired) {
			return err
		}
		// an already dead refresh token needs no further work
		if err == nil {
			if owner != subjectID {
				return core.NewTokenError(core.RefreshPolicy, core.ErrInvalidOrExpired, nil)
			}
			if err := s.tokens.Refresh().Invalidate(ctx, refreshToken); err != nil {
				return err
			}
		}
	}

	if err := s.tokens.Access().Invalidate(ctx, accessToken); err != nil {
		return err
	}

	s.logger.Info("logged out", zap.String("subject_id", subjectID))
	return nil
}

// ValidateAccessToken returns the subject of a valid access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (string, error) {
	return s.tokens.Access().Verify(ctx, accessToken)
}

// RequestEmailVerification issues a verification token and hands it to the mailer
func (s *AuthService) RequestEmailVerification(ctx context.Context, subjectID, email string) (string, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	now := s.clock.Now()
	token, err := s.tokens.EmailVerification().Create(ctx, subjectID)
	if err != nil {
		return "", err
	}

	event := core.EmailVerificationRequested{
		SubjectID: subjectID,
		Email:     addr.Address,
		Token:     token,
		ExpiresAt: now.Add(core.EmailVerificationPolicy.TTL),
	}
	if err := s.eventPub.PublishEmailVerification(ctx, event); err != nil {
		return "", fmt.Errorf("failed to request email verification: %w", err)
	}

	return token, nil
}

// VerifyEmail returns the subject whose address the token proves
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	return s.tokens.EmailVerification().Verify(ctx, token)
}
