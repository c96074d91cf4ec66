package auth

import "errors"

var (
	ErrTokenMalformed         = errors.New("auth: malformed token")
	ErrTokenSignatureInvalid  = errors.New("auth: invalid token signature")
	ErrTokenAlgorithmMismatch = errors.New("auth: token algorithm mismatch")
	ErrTokenIssuerMismatch    = errors.New("auth: token issuer mismatch")
	ErrTokenExpired           = errors.New("auth: token expired")
	ErrIdentityMismatch       = errors.New("auth: token subject does not match identity")
	ErrSubjectMissing         = errors.New("auth: token has no subject")
	ErrRateLimitExceeded      = errors.New("auth: rate limit exceeded")
	ErrUnauthorized           = errors.New("auth: unauthorized")

	ErrMissingSigningKey  = errors.New("auth: missing signing key")
	ErrWeakSigningKey     = errors.New("auth: signing key too short")
	ErrInvalidTokenConfig = errors.New("auth: invalid token config")
)
