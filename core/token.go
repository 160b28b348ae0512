package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// OpaqueTokenBytes is the amount of randomness in an opaque token
const OpaqueTokenBytes = 24

// Claims is the payload embedded in a signed token
type Claims struct {
	ID        string    // unique token identifier (jti)
	SubjectID string    // who the token was issued to
	Audience  string    // policy key the token was issued under
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is an access token issued together with its refresh token
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// NewOpaqueToken reads OpaqueTokenBytes from r and hex encodes them.
// A nil reader means crypto/rand.
func NewOpaqueToken(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, OpaqueTokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex sha256 of a raw token, safe to log or persist
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
