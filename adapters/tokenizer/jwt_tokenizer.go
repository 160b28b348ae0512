package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/tessera/adapters/clock"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/ports"
)

// ErrMissingSigningKey is returned when the tokenizer is built without a key
var ErrMissingSigningKey = errors.New("signing key is required")

// JWTTokenizer implements ports.Tokenizer with HS256 JWTs
type JWTTokenizer struct {
	signKey []byte
	issuer  string
	clock   ports.Clock
	parser  func(audience string) *jwt.Parser
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithIssuer sets the iss claim and requires it on parse
func WithIssuer(issuer string) Option {
	return func(j *JWTTokenizer) { j.issuer = issuer }
}

// WithClock replaces the wall clock used for iat, exp and expiry checks
func WithClock(c ports.Clock) Option {
	return func(j *JWTTokenizer) {
		if c != nil {
			j.clock = c
		}
	}
}

// NewJWTTokenizer creates a tokenizer signing with the given key
func NewJWTTokenizer(signKey []byte, opts ...Option) (*JWTTokenizer, error) {
	if len(signKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	j := &JWTTokenizer{
		signKey: signKey,
		clock:   clock.System{},
	}
	for _, opt := range opts {
		opt(j)
	}

	j.parser = func(audience string) *jwt.Parser {
		options := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(j.clock.Now),
			jwt.WithExpirationRequired(),
			jwt.WithAudience(audience),
		}
		if j.issuer != "" {
			options = append(options, jwt.WithIssuer(j.issuer))
		}
		return jwt.NewParser(options...)
	}

	return j, nil
}

// Sign converts claims to a signed JWT expiring ttl from now
func (j *JWTTokenizer) Sign(claims core.Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("invalid ttl %s", ttl)
	}

	now := j.clock.Now()
	id := claims.ID
	if id == "" {
		id = uuid.NewString()
	}

	tc := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.SubjectID,
			ID:        id,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if claims.Audience != "" {
		tc.Audience = jwt.ClaimStrings{claims.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Parse verifies the token and returns its claims.
// Claims are only read after the signature, expiry and audience checks pass.
func (j *JWTTokenizer) Parse(tokenStr, audience string) (core.Claims, error) {
	token, err := j.parser(audience).ParseWithClaims(tokenStr, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signKey, nil
	})
	if err != nil {
		return core.Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return core.Claims{}, core.ErrVerificationFailed
	}

	tc, ok := token.Claims.(*TokenClaims)
	if !ok {
		return core.Claims{}, fmt.Errorf("invalid claims type")
	}

	claims := core.Claims{
		ID:        tc.ID,
		SubjectID: tc.Subject,
		Audience:  audience,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}

	return claims, nil
}
