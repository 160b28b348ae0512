package core

import "time"

// TokenInvalidated is emitted after a token has been revoked
type TokenInvalidated struct {
	Policy    string    `json:"policy"`
	TokenHash string    `json:"token_hash"`
	At        time.Time `json:"at"`
}

// EmailVerificationRequested is emitted so a mailer can deliver the verification link
type EmailVerificationRequested struct {
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
