package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredPolicies(t *testing.T) {
	tests := []struct {
		policy     Policy
		kind       Kind
		revocation Revocation
		ttl        time.Duration
	}{
		{AccessPolicy, KindSigned, RevocationBlocklist, 15 * time.Minute},
		{RefreshPolicy, KindOpaque, RevocationAllowlist, 5 * 24 * time.Hour},
		{EmailVerificationPolicy, KindSigned, RevocationNone, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.policy.Key, func(t *testing.T) {
			require.NoError(t, tt.policy.Validate())
			assert.Equal(t, tt.kind, tt.policy.Kind)
			assert.Equal(t, tt.revocation, tt.policy.Revocation)
			assert.Equal(t, tt.ttl, tt.policy.TTL)
			assert.NotEmpty(t, tt.policy.Name)

			got, ok := PolicyByKey(tt.policy.Key)
			require.True(t, ok)
			assert.Equal(t, tt.policy, got)
		})
	}

	assert.False(t, EmailVerificationPolicy.Revocable())
	assert.True(t, AccessPolicy.Revocable())
	assert.True(t, RefreshPolicy.Revocable())

	_, ok := PolicyByKey("unknown")
	assert.False(t, ok)
}

func TestPolicyValidate(t *testing.T) {
	base := Policy{Key: "k", Name: "K", Kind: KindSigned, Revocation: RevocationNone, TTL: time.Minute}

	invalid := map[string]func(p *Policy){
		"missing key":           func(p *Policy) { p.Key = "" },
		"missing name":          func(p *Policy) { p.Name = "" },
		"zero ttl":              func(p *Policy) { p.TTL = 0 },
		"unknown kind":          func(p *Policy) { p.Kind = 0 },
		"signed with allowlist": func(p *Policy) { p.Revocation = RevocationAllowlist },
		"opaque without store":  func(p *Policy) { p.Kind = KindOpaque },
		"opaque with blocklist": func(p *Policy) { p.Kind, p.Revocation = KindOpaque, RevocationBlocklist },
	}

	require.NoError(t, base.Validate())
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestKindAndRevocationStrings(t *testing.T) {
	assert.Equal(t, "signed", KindSigned.String())
	assert.Equal(t, "opaque", KindOpaque.String())
	assert.Equal(t, "unknown", Kind(0).String())
	assert.Equal(t, "none", RevocationNone.String())
	assert.Equal(t, "blocklist", RevocationBlocklist.String())
	assert.Equal(t, "allowlist", RevocationAllowlist.String())
}
