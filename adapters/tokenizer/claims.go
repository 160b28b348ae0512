package tokenizer

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the standard claims carried by every signed token.
// The subject id is the only application data.
type TokenClaims struct {
	jwt.RegisteredClaims
}
