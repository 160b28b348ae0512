package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/ports"
)

// advanceFunc moves every clock the store under test depends on
type advanceFunc func(d time.Duration)

func testAllowlist(t *testing.T, s ports.Allowlist, now *clock.Manual, advance advanceFunc) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		subject, found, err := s.Lookup(ctx, "never-added")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, subject)
	})

	t.Run("add and lookup", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "tok-1", "user-1", now.Now().Add(time.Hour)))

		subject, found, err := s.Lookup(ctx, "tok-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "user-1", subject)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "tok-2", "user-2", now.Now().Add(time.Hour)))
		require.NoError(t, s.Delete(ctx, "tok-2"))
		require.NoError(t, s.Delete(ctx, "tok-2"))
		require.NoError(t, s.Delete(ctx, "never-added"))

		_, found, err := s.Lookup(ctx, "tok-2")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("take succeeds once", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "tok-4", "user-4", now.Now().Add(time.Hour)))

		subject, found, err := s.Take(ctx, "tok-4")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "user-4", subject)

		_, found, err = s.Take(ctx, "tok-4")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.Lookup(ctx, "tok-4")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.Take(ctx, "never-added")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expires", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "tok-3", "user-3", now.Now().Add(time.Hour)))

		advance(time.Hour + time.Second)

		_, found, err := s.Lookup(ctx, "tok-3")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.Take(ctx, "tok-3")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func testBlocklist(t *testing.T, s ports.Blocklist, advance advanceFunc) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		ok, err := s.Contains(ctx, "never-added")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("add is idempotent", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "jwt-1", 15*time.Minute))
		require.NoError(t, s.Add(ctx, "jwt-1", 15*time.Minute))

		ok, err := s.Contains(ctx, "jwt-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Contains(ctx, "jwt-2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entry lapses with the token", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, "jwt-3", time.Minute))

		advance(time.Minute + time.Second)

		ok, err := s.Contains(ctx, "jwt-3")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
