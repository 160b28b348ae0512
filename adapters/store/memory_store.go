package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/ports"
)

type allowlistEntry struct {
	subjectID string
	expiresAt time.Time
}

// MemoryAllowlist is an in-memory implementation of ports.Allowlist.
// Expired entries are dropped on access.
type MemoryAllowlist struct {
	entries map[string]allowlistEntry
	clock   ports.Clock
	mu      sync.RWMutex
}

// NewMemoryAllowlist creates a new in-memory allowlist. A nil clock means the wall clock.
func NewMemoryAllowlist(c ports.Clock) *MemoryAllowlist {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryAllowlist{
		entries: make(map[string]allowlistEntry),
		clock:   c,
	}
}

// Add stores the token until expiresAt
func (s *MemoryAllowlist) Add(ctx context.Context, token, subjectID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token] = allowlistEntry{subjectID: subjectID, expiresAt: expiresAt}
	return nil
}

// Lookup returns the subject of a live token
func (s *MemoryAllowlist) Lookup(ctx context.Context, token string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	entry, exists := s.entries[token]
	s.mu.RUnlock()

	if !exists {
		return "", false, nil
	}

	if !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		// only delete if nobody re-added the token meanwhile
		if current, ok := s.entries[token]; ok && !current.expiresAt.After(entry.expiresAt) {
			delete(s.entries, token)
		}
		s.mu.Unlock()
		return "", false, nil
	}

	return entry.subjectID, true, nil
}

// Delete removes the token
func (s *MemoryAllowlist) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, token)
	return nil
}

// Take removes the token and returns its subject if it was still live
func (s *MemoryAllowlist) Take(ctx context.Context, token string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[token]
	if !exists {
		return "", false, nil
	}
	delete(s.entries, token)

	if !s.clock.Now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.subjectID, true, nil
}

// Purge drops expired entries and returns how many were removed
func (s *MemoryAllowlist) Purge() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for token, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, token)
			purged++
		}
	}
	return purged
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryAllowlist) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ping always succeeds
func (s *MemoryAllowlist) Ping(context.Context) error {
	return nil
}

// MemoryBlocklist is an in-memory implementation of ports.Blocklist
type MemoryBlocklist struct {
	revoked map[string]time.Time
	clock   ports.Clock
	mu      sync.RWMutex
}

// NewMemoryBlocklist creates a new in-memory blocklist. A nil clock means the wall clock.
func NewMemoryBlocklist(c ports.Clock) *MemoryBlocklist {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryBlocklist{
		revoked: make(map[string]time.Time),
		clock:   c,
	}
}

// Add marks a token as revoked for ttl
func (s *MemoryBlocklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	expiresAt := s.clock.Now().Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	// never shorten an existing revocation
	if current, ok := s.revoked[token]; ok && current.After(expiresAt) {
		return nil
	}
	s.revoked[token] = expiresAt
	return nil
}

// Contains checks if a token is revoked
func (s *MemoryBlocklist) Contains(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, exists := s.revoked[token]
	if !exists {
		return false, nil
	}

	// the token itself has expired by now, the entry no longer matters
	if !s.clock.Now().Before(expiresAt) {
		return false, nil
	}

	return true, nil
}

// Purge drops revocations whose tokens can no longer be valid
func (s *MemoryBlocklist) Purge() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for token, expiresAt := range s.revoked {
		if !now.Before(expiresAt) {
			delete(s.revoked, token)
			purged++
		}
	}
	return purged
}

// Ping always succeeds
func (s *MemoryBlocklist) Ping(context.Context) error {
	return nil
}
