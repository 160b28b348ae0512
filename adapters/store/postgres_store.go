package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

// PgxConn is the subset of *pgxpool.Pool used by the Postgres stores
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const schema = `
CREATE TABLE IF NOT EXISTS allowlisted_tokens (
    token_hash TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS allowlisted_tokens_expires_at_idx ON allowlisted_tokens (expires_at);

CREATE TABLE IF NOT EXISTS blocklisted_tokens (
    token_hash TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS blocklisted_tokens_expires_at_idx ON blocklisted_tokens (expires_at);
`

// EnsureSchema creates the allowlist and blocklist tables if they are missing
func EnsureSchema(ctx context.Context, conn PgxConn) error {
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create token tables: %w", err)
	}
	return nil
}

// PostgresAllowlist is a Postgres implementation of ports.Allowlist.
// Expired rows are filtered on read and removed by PurgeExpired.
type PostgresAllowlist struct {
	conn  PgxConn
	clock ports.Clock
}

// NewPostgresAllowlist creates a new Postgres allowlist
func NewPostgresAllowlist(conn PgxConn, c ports.Clock) *PostgresAllowlist {
	if c == nil {
		c = clock.System{}
	}
	return &PostgresAllowlist{conn: conn, clock: c}
}

// Add stores the token until expiresAt
func (s *PostgresAllowlist) Add(ctx context.Context, token, subjectID string, expiresAt time.Time) error {
	const query = `
        INSERT INTO allowlisted_tokens (token_hash, subject_id, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (token_hash) DO UPDATE SET subject_id = EXCLUDED.subject_id, expires_at = EXCLUDED.expires_at`
	if _, err := s.conn.Exec(ctx, query, core.HashToken(token), subjectID, expiresAt); err != nil {
		return fmt.Errorf("failed to add token to allowlist: %w", err)
	}
	return nil
}

// Lookup returns the subject of a live token
func (s *PostgresAllowlist) Lookup(ctx context.Context, token string) (string, bool, error) {
	const query = `
        SELECT subject_id FROM allowlisted_tokens
        WHERE token_hash = $1 AND expires_at > $2`
	var subjectID string
	if err := s.conn.QueryRow(ctx, query, core.HashToken(token), s.clock.Now()).Scan(&subjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up token: %w", err)
	}
	return subjectID, true, nil
}

// Delete removes the token
func (s *PostgresAllowlist) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM allowlisted_tokens WHERE token_hash = $1`
	if _, err := s.conn.Exec(ctx, query, core.HashToken(token)); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Take deletes a live token and returns its subject in one statement.
// Expired rows are left to PurgeExpired.
func (s *PostgresAllowlist) Take(ctx context.Context, token string) (string, bool, error) {
	const query = `
        DELETE FROM allowlisted_tokens
        WHERE token_hash = $1 AND expires_at > $2
        RETURNING subject_id`
	var subjectID string
	if err := s.conn.QueryRow(ctx, query, core.HashToken(token), s.clock.Now()).Scan(&subjectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to take token: %w", err)
	}
	return subjectID, true, nil
}

// PurgeExpired deletes rows past their expiry and returns how many were removed
func (s *PostgresAllowlist) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM allowlisted_tokens WHERE expires_at <= $1`, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge allowlist: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the connection
func (s *PostgresAllowlist) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// PostgresBlocklist is a Postgres implementation of ports.Blocklist keyed by token hash
type PostgresBlocklist struct {
	conn  PgxConn
	clock ports.Clock
}

// NewPostgresBlocklist creates a new Postgres blocklist
func NewPostgresBlocklist(conn PgxConn, c ports.Clock) *PostgresBlocklist {
	if c == nil {
		c = clock.System{}
	}
	return &PostgresBlocklist{conn: conn, clock: c}
}

// Add marks a token as revoked for ttl
func (s *PostgresBlocklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	const query = `
        INSERT INTO blocklisted_tokens (token_hash, expires_at)
        VALUES ($1, $2)
        ON CONFLICT (token_hash) DO UPDATE SET expires_at = GREATEST(blocklisted_tokens.expires_at, EXCLUDED.expires_at)`
	if _, err := s.conn.Exec(ctx, query, core.HashToken(token), s.clock.Now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to add token to blocklist: %w", err)
	}
	return nil
}

// Contains checks if a token is revoked
func (s *PostgresBlocklist) Contains(ctx context.Context, token string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM blocklisted_tokens WHERE token_hash = $1 AND expires_at > $2
        )`
	var exists bool
	if err := s.conn.QueryRow(ctx, query, core.HashToken(token), s.clock.Now()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check blocklist: %w", err)
	}
	return exists, nil
}

// PurgeExpired deletes revocations for tokens that have expired on their own
func (s *PostgresBlocklist) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM blocklisted_tokens WHERE expires_at <= $1`, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge blocklist: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the connection
func (s *PostgresBlocklist) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
