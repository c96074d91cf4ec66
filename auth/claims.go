package auth

import (
	"slices"
	"strings"
	"time"
)

// AuthorityPrefix marks a role name as a granted authority.
const AuthorityPrefix = "ROLE_"

// RoleSet is a sorted, de-duplicated set of bare role names ("USER", "ADMIN").
// On the wire it travels as a comma-joined "role" claim.
type RoleSet []string

// ParseRoles splits a comma-separated role claim. Entries are trimmed, an
// existing ROLE_ prefix is dropped and blanks are ignored.
func ParseRoles(claim string) RoleSet {
	return NewRoleSet(claim)
}

// NewRoleSet normalizes each role; entries may themselves be comma-separated.
func NewRoleSet(roles ...string) RoleSet {
	var out RoleSet
	for _, entry := range roles {
		for _, part := range strings.Split(entry, ",") {
			role := strings.TrimPrefix(strings.TrimSpace(part), AuthorityPrefix)
			if role == "" {
				continue
			}
			out = append(out, role)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r RoleSet) Contains(role string) bool {
	_, found := slices.BinarySearch(r, strings.TrimPrefix(strings.TrimSpace(role), AuthorityPrefix))
	return found
}

// String renders the wire form of the role claim.
func (r RoleSet) String() string { return strings.Join(r, ",") }

// Authorities returns the ROLE_-prefixed authority names.
func (r RoleSet) Authorities() []string {
	if len(r) == 0 {
		return nil
	}
	out := make([]string, len(r))
	for i, role := range r {
		out[i] = AuthorityPrefix + role
	}
	return out
}

// Claims is the decoded payload of a bearer token. It is never mutated after
// decoding.
type Claims struct {
	ID        string
	Subject   string
	Issuer    string
	Audience  []string
	Roles     RoleSet
	IssuedAt  time.Time
	ExpiresAt time.Time
	Algorithm string
	// Extra holds string claims other than the registered ones and role.
	Extra map[string]string
}

// ExpiredAt reports whether now is at or past the expiry.
func (c Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
