package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotProvided is returned when an opaque token is empty at verify time
	ErrNotProvided = errors.New("token not provided")

	// ErrRevoked is returned when a signed token is found in the blocklist
	ErrRevoked = errors.New("token has been revoked")

	// ErrVerificationFailed is returned when a signed token is malformed, tampered with or expired
	ErrVerificationFailed = errors.New("token verification failed")

	// ErrInvalidOrExpired is returned when an opaque token is absent from the allowlist.
	// Never created, expired and invalidated tokens are deliberately indistinguishable.
	ErrInvalidOrExpired = errors.New("invalid token")

	// ErrNotRevocable is returned when invalidating a token whose policy has no revocation store
	ErrNotRevocable = errors.New("token cannot be revoked")

	// ErrInvalidSubject is returned when a token is requested for an empty subject
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrStoreOperationFailed is returned when a revocation store call fails
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// TokenError is the failure of a lifecycle operation for one policy
type TokenError struct {
	Policy string // human readable policy name
	Kind   error  // one of the sentinel errors above
	Err    error  // underlying cause, may be nil
}

// NewTokenError builds a TokenError for the policy
func NewTokenError(p Policy, kind, cause error) *TokenError {
	return &TokenError{Policy: p.Name, Kind: kind, Err: cause}
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Policy, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Policy, e.Kind)
}

// Is matches the sentinel kind so callers can use errors.Is(err, core.ErrRevoked)
func (e *TokenError) Is(target error) bool {
	return e.Kind == target
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err means the presented token must be refused,
// as opposed to an infrastructure failure
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotProvided) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrVerificationFailed) ||
		errors.Is(err, ErrInvalidOrExpired)
}
