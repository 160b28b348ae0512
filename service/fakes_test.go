package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

var errStoreDown = errors.New("store down")

// failingAllowlist fails every call
type failingAllowlist struct{}

func (failingAllowlist) Add(context.Context, string, string, time.Time) error { return errStoreDown }

func (failingAllowlist) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errStoreDown
}

func (failingAllowlist) Delete(context.Context, string) error { return errStoreDown }

func (failingAllowlist) Take(context.Context, string) (string, bool, error) {
	return "", false, errStoreDown
}

// slowAllowlist adds a round trip delay to reads, like a remote store
type slowAllowlist struct {
	ports.Allowlist
	delay time.Duration
}

func (s slowAllowlist) Lookup(ctx context.Context, token string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.Allowlist.Lookup(ctx, token)
}

func (s slowAllowlist) Take(ctx context.Context, token string) (string, bool, error) {
	time.Sleep(s.delay)
	return s.Allowlist.Take(ctx, token)
}

// countingBlocklist records calls before delegating
type countingBlocklist struct {
	ports.Blocklist
	mu       sync.Mutex
	contains int
	fail     bool
}

func (b *countingBlocklist) Contains(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	b.contains++
	fail := b.fail
	b.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return b.Blocklist.Contains(ctx, token)
}

func (b *countingBlocklist) containsCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contains
}

// spyTokenizer records Parse calls before delegating
type spyTokenizer struct {
	ports.Tokenizer
	mu      sync.Mutex
	parses  int
	signErr error
}

func (s *spyTokenizer) Sign(claims core.Claims, ttl time.Duration) (string, error) {
	if s.signErr != nil {
		return "", s.signErr
	}
	return s.Tokenizer.Sign(claims, ttl)
}

func (s *spyTokenizer) Parse(token, audience string) (core.Claims, error) {
	s.mu.Lock()
	s.parses++
	s.mu.Unlock()
	return s.Tokenizer.Parse(token, audience)
}

func (s *spyTokenizer) parseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parses
}

// recordingPublisher keeps every event
type recordingPublisher struct {
	mu          sync.Mutex
	invalidated []core.TokenInvalidated
	emails      []core.EmailVerificationRequested
	err         error
}

func (p *recordingPublisher) PublishInvalidated(_ context.Context, event core.TokenInvalidated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.invalidated = append(p.invalidated, event)
	return nil
}

func (p *recordingPublisher) PublishEmailVerification(_ context.Context, event core.EmailVerificationRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.emails = append(p.emails, event)
	return nil
}
