package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/adapters/store"
	"github.com/layer-3/tessera/adapters/tokenizer"
	"github.com/layer-3/tessera/ports"
)

type fixture struct {
	svc       *TokenService
	clock     *clock.Manual
	tokenizer *spyTokenizer
	blocklist *countingBlocklist
	allowlist *store.MemoryAllowlist
	events    *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	c := clock.NewManual(time.Now().Truncate(time.Second))
	tk, err := tokenizer.NewJWTTokenizer([]byte("service-test-key"), tokenizer.WithClock(c))
	require.NoError(t, err)

	f := &fixture{
		clock:     c,
		tokenizer: &spyTokenizer{Tokenizer: tk},
		blocklist: &countingBlocklist{Blocklist: store.NewMemoryBlocklist(c)},
		allowlist: store.NewMemoryAllowlist(c),
		events:    &recordingPublisher{},
	}

	f.svc = f.build(t, f.allowlist, opts...)
	return f
}

func (f *fixture) build(t *testing.T, allowlist ports.Allowlist, opts ...Option) *TokenService {
	t.Helper()
	svc, err := NewTokenService(f.tokenizer, f.blocklist, allowlist,
		append([]Option{WithClock(f.clock), WithEventPublisher(f.events)}, opts...)...)
	require.NoError(t, err)
	return svc
}
