package core

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the codec strategy of a token policy
type Kind int

const (
	// KindSigned tokens are self-contained signed JWTs
	KindSigned Kind = iota + 1
	// KindOpaque tokens are random strings backed by an allowlist
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindSigned:
		return "signed"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Revocation is the revocation store variant a policy consults
type Revocation int

const (
	// RevocationNone means tokens can only expire
	RevocationNone Revocation = iota
	// RevocationBlocklist stores revoked signed tokens
	RevocationBlocklist
	// RevocationAllowlist stores currently valid opaque tokens
	RevocationAllowlist
)

func (r Revocation) String() string {
	switch r {
	case RevocationNone:
		return "none"
	case RevocationBlocklist:
		return "blocklist"
	case RevocationAllowlist:
		return "allowlist"
	default:
		return "unknown"
	}
}

// Policy describes how one kind of token is created, verified and invalidated
type Policy struct {
	Key        string // stable identifier, also used as the JWT audience
	Name       string // human readable, carried by errors
	Kind       Kind
	Revocation Revocation
	TTL        time.Duration
}

// Revocable reports whether tokens of this policy can be invalidated before expiry
func (p Policy) Revocable() bool {
	return p.Revocation != RevocationNone
}

// Validate checks that the codec strategy and revocation store fit together
func (p Policy) Validate() error {
	if p.Key == "" || p.Name == "" {
		return errors.New("policy key and name are required")
	}
	if p.TTL <= 0 {
		return fmt.Errorf("policy %s: ttl must be positive", p.Key)
	}

	switch p.Kind {
	case KindSigned:
		if p.Revocation == RevocationAllowlist {
			return fmt.Errorf("policy %s: signed tokens cannot use an allowlist", p.Key)
		}
	case KindOpaque:
		// an opaque token carries nothing, the allowlist is its only state
		if p.Revocation != RevocationAllowlist {
			return fmt.Errorf("policy %s: opaque tokens require an allowlist", p.Key)
		}
	default:
		return fmt.Errorf("policy %s: unknown kind %d", p.Key, p.Kind)
	}

	return nil
}

var (
	// AccessPolicy issues short-lived signed tokens that can be revoked through the blocklist
	AccessPolicy = Policy{
		Key:        "access",
		Name:       "Access Token",
		Kind:       KindSigned,
		Revocation: RevocationBlocklist,
		TTL:        15 * time.Minute,
	}

	// RefreshPolicy issues opaque tokens that live in the allowlist
	RefreshPolicy = Policy{
		Key:        "refresh",
		Name:       "Refresh Token",
		Kind:       KindOpaque,
		Revocation: RevocationAllowlist,
		TTL:        120 * time.Hour, // 5 days
	}

	// EmailVerificationPolicy issues signed tokens that only expire
	EmailVerificationPolicy = Policy{
		Key:        "email_verification",
		Name:       "Email Verification Token",
		Kind:       KindSigned,
		Revocation: RevocationNone,
		TTL:        time.Hour,
	}
)

// Policies returns every registered policy
func Policies() []Policy {
	return []Policy{AccessPolicy, RefreshPolicy, EmailVerificationPolicy}
}

// PolicyByKey looks up a registered policy by its key
func PolicyByKey(key string) (Policy, bool) {
	for _, p := range Policies() {
		if p.Key == key {
			return p, true
		}
	}
	return Policy{}, false
}
