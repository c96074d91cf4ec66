// Package auth implements the stateless authentication gate: bearer token
// issuance and validation, per-request security contexts, token refresh and
// the user directory contracts they depend on.
package auth

import (
	"context"
	"time"
)

// TokenIssuer mints signed bearer tokens.
type TokenIssuer interface {
	Issue(subject string, extraClaims map[string]string, now time.Time) (string, error)
}

// TokenValidator decodes and checks bearer tokens.
type TokenValidator interface {
	// ExtractClaims decodes the payload without verifying the signature.
	ExtractClaims(raw string) (Claims, error)
	Validate(raw string, now time.Time) (Claims, error)
	Matches(claims Claims, expectedSubject string, now time.Time) error
}

// TokenAuthority both mints and checks tokens.
type TokenAuthority interface {
	TokenIssuer
	TokenValidator
}

// Directory resolves identities by email.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
}

// PasswordHash contains the metadata needed to verify a hashed password.
type PasswordHash struct {
	Algorithm string
	Cost      int
	Value     []byte
	CreatedAt time.Time
}

// PasswordOptions overrides hasher defaults for a single call.
type PasswordOptions struct {
	Cost int
}

// PasswordHasher manages password hashing and verification.
type PasswordHasher interface {
	Hash(ctx context.Context, plain []byte, opts PasswordOptions) (PasswordHash, error)
	Compare(ctx context.Context, plain []byte, hash PasswordHash) error
}
