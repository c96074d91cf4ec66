package auth

import (
	"context"
	"slices"
)

// SecurityContext is the authenticated identity of a single request.
type SecurityContext struct {
	Principal   string
	Authorities []string
	Claims      Claims
}

func (s SecurityContext) HasAuthority(authority string) bool {
	return slices.Contains(s.Authorities, authority)
}

// HasRole accepts either a bare role or its ROLE_ authority.
func (s SecurityContext) HasRole(role string) bool {
	return s.HasAuthority(AuthorityPrefix + NewRoleSet(role).String())
}

type securityContextKey struct{}

func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the context attached by the gate, if any.
func SecurityContextFrom(ctx context.Context) (SecurityContext, bool) {
	if ctx == nil {
		return SecurityContext{}, false
	}
	sc, ok := ctx.Value(securityContextKey{}).(SecurityContext)
	return sc, ok
}
