package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RefreshResult carries a newly issued token.
type RefreshResult struct {
	Token   string
	Subject string
	Roles   RoleSet
}

// RefreshFlow exchanges a still-valid token for a fresh one without a
// password. The presented token is not revoked and stays valid until its own
// expiry.
type RefreshFlow struct {
	tokens    TokenAuthority
	directory Directory
	now       func() time.Time
}

func NewRefreshFlow(tokens TokenAuthority, directory Directory, now func() time.Time) (*RefreshFlow, error) {
	if tokens == nil || directory == nil {
		return nil, errors.New("auth: refresh flow requires tokens and a directory")
	}
	if now == nil {
		now = time.Now
	}
	return &RefreshFlow{tokens: tokens, directory: directory, now: now}, nil
}

// Refresh takes the raw Authorization header value. Every failure matches
// ErrUnauthorized as well as its specific cause.
func (f *RefreshFlow) Refresh(ctx context.Context, authorization string) (RefreshResult, error) {
	raw, err := BearerToken(authorization)
	if err != nil {
		return RefreshResult{}, unauthorized(err)
	}

	presented, err := f.tokens.ExtractClaims(raw)
	if err != nil {
		return RefreshResult{}, unauthorized(err)
	}

	user, err := f.directory.FindByEmail(ctx, presented.Subject)
	if err != nil {
		return RefreshResult{}, unauthorized(err)
	}

	now := f.now()
	claims, err := f.tokens.Validate(raw, now)
	if err != nil {
		return RefreshResult{}, unauthorized(err)
	}
	if err := f.tokens.Matches(claims, user.Email, now); err != nil {
		return RefreshResult{}, unauthorized(err)
	}

	// Token times have one-second resolution. Issuing no earlier than a
	// second after the presented token keeps the new expiry strictly later.
	issueAt := now
	if floor := claims.IssuedAt.Add(time.Second); issueAt.Before(floor) {
		issueAt = floor
	}
	token, err := f.tokens.Issue(claims.Subject, map[string]string{roleClaim: claims.Roles.String()}, issueAt)
	if err != nil {
		return RefreshResult{}, unauthorized(err)
	}
	if token == "" {
		return RefreshResult{}, unauthorized(errors.New("auth: token issuance returned nothing"))
	}

	return RefreshResult{Token: token, Subject: claims.Subject, Roles: claims.Roles}, nil
}

func unauthorized(cause error) error {
	return fmt.Errorf("%w: %w", ErrUnauthorized, cause)
}
