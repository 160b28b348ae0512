package ports

import (
	"time"

	"github.com/layer-3/tessera/core"
)

// Tokenizer converts between claims and signed tokens
type Tokenizer interface {
	// Sign encodes claims into a token that expires ttl from now
	Sign(claims core.Claims, ttl time.Duration) (string, error)

	// Parse verifies the signature, expiry and audience before returning claims
	Parse(token, audience string) (core.Claims, error)
}
