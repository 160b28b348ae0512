package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tessera/core"
)

func TestIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	pair, err := auth.Issue(ctx, "user-42")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(core.AccessPolicy.TTL), pair.AccessExpiresAt)
	assert.Equal(t, f.clock.Now().Add(core.RefreshPolicy.TTL), pair.RefreshExpiresAt)

	subject, err := auth.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)

	subject, err = f.svc.Refresh().Verify(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	_, err := auth.Issue(context.Background(), "")
	require.ErrorIs(t, err, core.ErrInvalidSubject)
	assert.Equal(t, 0, f.allowlist.Len())
}

func TestIssueDropsRefreshWhenAccessFails(t *testing.T) {
	f := newFixture(t)
	f.tokenizer.signErr = errors.New("signer unavailable")
	auth := NewAuthService(f.svc)

	_, err := auth.Issue(context.Background(), "user-42")
	require.Error(t, err)

	// the orphaned refresh token was deleted again
	assert.Equal(t, 0, f.allowlist.Len())
}

func TestRefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	first, err := auth.Issue(ctx, "user-42")
	require.NoError(t, err)

	second, err := auth.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	subject, err := auth.ValidateAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)

	// refresh tokens are single use
	_, err = auth.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, core.ErrInvalidOrExpired)

	_, err = auth.Refresh(ctx, "")
	require.ErrorIs(t, err, core.ErrNotProvided)
}

func TestConcurrentRefreshSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.build(t, slowAllowlist{Allowlist: f.allowlist, delay: 5 * time.Millisecond})
	auth := NewAuthService(svc)

	pair, err := auth.Issue(ctx, "user-42")
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.Refresh(ctx, pair.RefreshToken)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, core.ErrInvalidOrExpired):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, callers-1, rejected.Load())
	// the original pair's refresh token is gone, one new one was issued
	assert.Equal(t, 1, f.allowlist.Len())
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	pair, err := auth.Issue(ctx, "user-42")
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = auth.ValidateAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, core.ErrRevoked)

	_, err = f.svc.Refresh().Verify(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, core.ErrInvalidOrExpired)

	assert.Len(t, f.events.invalidated, 2)

	// a revoked access token cannot log out again
	err = auth.Logout(ctx, pair.AccessToken, "")
	require.ErrorIs(t, err, core.ErrRevoked)
}

func TestLogoutWithDeadRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	pair, err := auth.Issue(ctx, "user-42")
	require.NoError(t, err)
	require.NoError(t, f.svc.Refresh().Invalidate(ctx, pair.RefreshToken))

	require.NoError(t, auth.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = auth.ValidateAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, core.ErrRevoked)
}

func TestLogoutRefusesForeignRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	mine, err := auth.Issue(ctx, "user-1")
	require.NoError(t, err)
	theirs, err := auth.Issue(ctx, "user-2")
	require.NoError(t, err)

	err = auth.Logout(ctx, mine.AccessToken, theirs.RefreshToken)
	require.ErrorIs(t, err, core.ErrInvalidOrExpired)

	subject, err := f.svc.Refresh().Verify(ctx, theirs.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-2", subject)

	// nothing was revoked
	_, err = auth.ValidateAccessToken(ctx, mine.AccessToken)
	require.NoError(t, err)
}

func TestEmailVerificationFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	token, err := auth.RequestEmailVerification(ctx, "user-42", "Jane <jane@example.com>")
	require.NoError(t, err)

	require.Len(t, f.events.emails, 1)
	event := f.events.emails[0]
	assert.Equal(t, "user-42", event.SubjectID)
	assert.Equal(t, "jane@example.com", event.Email)
	assert.Equal(t, token, event.Token)
	assert.Equal(t, f.clock.Now().Add(core.EmailVerificationPolicy.TTL), event.ExpiresAt)

	subject, err := auth.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", subject)

	f.clock.Advance(core.EmailVerificationPolicy.TTL + 1)
	_, err = auth.VerifyEmail(ctx, token)
	require.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestEmailVerificationRequestFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := NewAuthService(f.svc)

	_, err := auth.RequestEmailVerification(ctx, "user-42", "not-an-address")
	require.ErrorIs(t, err, ErrInvalidEmail)

	f.events.err = errors.New("broker down")
	_, err = auth.RequestEmailVerification(ctx, "user-42", "jane@example.com")
	require.Error(t, err)
}
