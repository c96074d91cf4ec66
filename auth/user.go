package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound     = errors.New("auth: user not found")
	ErrUserEmailInUse   = errors.New("auth: email already registered")
	ErrUserInvalidInput = errors.New("auth: invalid user input")
	// ErrRolesUnsupported is returned by ChangeRoles when the store cannot
	// update roles.
	ErrRolesUnsupported = errors.New("auth: user store does not support role changes")
)

// ValidationError describes a rejected registration field. It matches
// ErrUserInvalidInput.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return ErrUserInvalidInput.Error() + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrUserInvalidInput }

// DefaultRole is granted to registrations that do not name one.
const DefaultRole = "USER"

// RegistrationMessage is returned on successful registration.
const RegistrationMessage = "User Succesfully Registered"

// User is a directory entry.
type User struct {
	ID           string
	Email        string
	PasswordHash PasswordHash
	Roles        RoleSet
	FirstName    string
	LastName     string
	Country      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore persists users. FindByEmail returns ErrUserNotFound on absence and
// CreateUser returns ErrUserEmailInUse on a duplicate email.
type UserStore interface {
	Directory
	CreateUser(ctx context.Context, user User) error
}

// Registration is the input of UserService.Register.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Country   string
	Role      string
}

// RoleStore is implemented by stores that can replace a user's roles.
type RoleStore interface {
	UpdateRoles(ctx context.Context, email string, roles RoleSet) error
}

// DirectoryInvalidator drops cached directory entries, see CachedDirectory.
type DirectoryInvalidator interface {
	Invalidate(ctx context.Context, email string) error
}

// UserService handles password-based registration, authentication and
// administrative role changes.
type UserService struct {
	store       UserStore
	hasher      PasswordHasher
	tokens      TokenIssuer
	now         func() time.Time
	selfRoles   RoleSet
	invalidator DirectoryInvalidator
}

// UserServiceConfig wires dependencies for UserService.
type UserServiceConfig struct {
	Store  UserStore
	Hasher PasswordHasher
	Tokens TokenIssuer
	Now    func() time.Time
	// SelfAssignableRoles lists the roles a caller may request when
	// registering. Empty means DefaultRole only.
	SelfAssignableRoles []string
	// Invalidator, when set, is told about every role change.
	Invalidator DirectoryInvalidator
}

func NewUserService(cfg UserServiceConfig) (*UserService, error) {
	if cfg.Store == nil || cfg.Hasher == nil || cfg.Tokens == nil {
		return nil, ErrUserInvalidInput
	}
	svc := &UserService{
		store:       cfg.Store,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		now:         cfg.Now,
		selfRoles:   NewRoleSet(cfg.SelfAssignableRoles...),
		invalidator: cfg.Invalidator,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if len(svc.selfRoles) == 0 {
		svc.selfRoles = NewRoleSet(DefaultRole)
	}
	return svc, nil
}

// Register validates the request, hashes the password and stores the user.
func (s *UserService) Register(ctx context.Context, reg Registration) (string, error) {
	email := strings.TrimSpace(reg.Email)
	if !ValidateEmail(email) {
		return "", &ValidationError{Message: "Email should be valid"}
	}
	if len(reg.Password) < MinRegistrationPasswordLength {
		return "", &ValidationError{Message: fmt.Sprintf("Password must be at least %d characters long", MinRegistrationPasswordLength)}
	}
	if strings.TrimSpace(reg.FirstName) == "" {
		return "", &ValidationError{Message: "First name cannot be blank"}
	}
	if strings.TrimSpace(reg.LastName) == "" {
		return "", &ValidationError{Message: "Last name cannot be blank"}
	}

	roles := NewRoleSet(reg.Role)
	if len(roles) == 0 {
		roles = NewRoleSet(DefaultRole)
	}
	for _, role := range roles {
		if !s.selfRoles.Contains(role) {
			return "", &ValidationError{Message: fmt.Sprintf("Role %s cannot be requested at registration", role)}
		}
	}

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return "", ErrUserEmailInUse
	case !errors.Is(err, ErrUserNotFound):
		return "", err
	}

	hash, err := s.hasher.Hash(ctx, []byte(reg.Password), PasswordOptions{})
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Country:      strings.TrimSpace(reg.Country),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return "", err
	}

	zerolog.Ctx(ctx).Info().Str("email", email).Msg("registered new user")
	return RegistrationMessage, nil
}

// Authenticate checks the password and issues a token carrying the user's
// roles. Every failure matches ErrUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (string, User, error) {
	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", User{}, unauthorized(err)
	}
	if err := s.hasher.Compare(ctx, []byte(password), user.PasswordHash); err != nil {
		return "", User{}, unauthorized(err)
	}
	token, err := s.tokens.Issue(user.Email, map[string]string{roleClaim: user.Roles.String()}, s.now())
	if err != nil {
		return "", User{}, unauthorized(err)
	}
	return token, user, nil
}

// ChangeRoles replaces the roles of an existing user and drops any cached
// directory entry, so the gate and refresh see the new roles immediately.
// Tokens issued before the change keep their old role claim until they expire.
func (s *UserService) ChangeRoles(ctx context.Context, email string, roles []string) (RoleSet, error) {
	email = strings.TrimSpace(email)
	set := NewRoleSet(roles...)
	if len(set) == 0 {
		return nil, &ValidationError{Message: "Roles cannot be empty"}
	}
	rs, ok := s.store.(RoleStore)
	if !ok {
		return nil, ErrRolesUnsupported
	}
	if err := rs.UpdateRoles(ctx, email, set); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, email); err != nil {
			return nil, fmt.Errorf("auth: invalidate directory entry: %w", err)
		}
	}

	zerolog.Ctx(ctx).Info().Str("email", email).Str("roles", set.String()).Msg("changed user roles")
	return set, nil
}
