package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordTooShort         = errors.New("auth: password too short")
	ErrPasswordTooLong          = errors.New("auth: password too long")
	ErrPasswordNoUppercase      = errors.New("auth: password must contain uppercase letter")
	ErrPasswordNoLowercase      = errors.New("auth: password must contain lowercase letter")
	ErrPasswordNoDigit          = errors.New("auth: password must contain digit")
	ErrPasswordMismatch         = errors.New("auth: password does not match")
	ErrPasswordInvalidAlgorithm = errors.New("auth: unsupported password algorithm")
	ErrPasswordInvalidHash      = errors.New("auth: invalid password hash")
)

const AlgorithmBcrypt = "bcrypt"

const (
	DefaultBcryptCost = 12
	// MinRegistrationPasswordLength is the shortest password accepted at sign-up.
	MinRegistrationPasswordLength = 6
	// MaxPasswordLength is bcrypt's input limit in bytes.
	MaxPasswordLength = 72
)

// PasswordValidationOptions configures password strength requirements.
type PasswordValidationOptions struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
}

// RegistrationPasswordPolicy only bounds the length.
func RegistrationPasswordPolicy() PasswordValidationOptions {
	return PasswordValidationOptions{
		MinLength: MinRegistrationPasswordLength,
		MaxLength: MaxPasswordLength,
	}
}

// ValidatePasswordStrength checks password against validation rules.
func ValidatePasswordStrength(password []byte, opts PasswordValidationOptions) error {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = MinRegistrationPasswordLength
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 || maxLen > MaxPasswordLength {
		maxLen = MaxPasswordLength
	}

	if len([]rune(string(password))) < minLen {
		return ErrPasswordTooShort
	}
	if len(password) > maxLen {
		return ErrPasswordTooLong
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range string(password) {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if opts.RequireUppercase && !hasUpper {
		return ErrPasswordNoUppercase
	}
	if opts.RequireLowercase && !hasLower {
		return ErrPasswordNoLowercase
	}
	if opts.RequireDigit && !hasDigit {
		return ErrPasswordNoDigit
	}
	return nil
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost       int
	now        func() time.Time
	validation PasswordValidationOptions
}

// BcryptHasherOption configures BcryptHasher.
type BcryptHasherOption func(*BcryptHasher)

// WithBcryptCost sets the bcrypt cost factor.
func WithBcryptCost(cost int) BcryptHasherOption {
	return func(h *BcryptHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithBcryptValidation sets password validation options.
func WithBcryptValidation(opts PasswordValidationOptions) BcryptHasherOption {
	return func(h *BcryptHasher) {
		h.validation = opts
	}
}

// WithBcryptNow sets a custom time function for testing.
func WithBcryptNow(fn func() time.Time) BcryptHasherOption {
	return func(h *BcryptHasher) {
		if fn != nil {
			h.now = fn
		}
	}
}

// NewBcryptHasher creates a new bcrypt-based password hasher.
func NewBcryptHasher(opts ...BcryptHasherOption) *BcryptHasher {
	h := &BcryptHasher{
		cost:       DefaultBcryptCost,
		now:        time.Now,
		validation: RegistrationPasswordPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Hash generates a bcrypt hash for the given password.
func (h *BcryptHasher) Hash(ctx context.Context, plain []byte, opts PasswordOptions) (PasswordHash, error) {
	if err := contextError(ctx); err != nil {
		return PasswordHash{}, err
	}

	if err := ValidatePasswordStrength(plain, h.validation); err != nil {
		return PasswordHash{}, err
	}

	cost := h.cost
	if opts.Cost > 0 && opts.Cost >= bcrypt.MinCost && opts.Cost <= bcrypt.MaxCost {
		cost = opts.Cost
	}

	hashed, err := bcrypt.GenerateFromPassword(plain, cost)
	if err != nil {
		return PasswordHash{}, fmt.Errorf("auth: bcrypt hash failed: %w", err)
	}

	return PasswordHash{
		Algorithm: AlgorithmBcrypt,
		Cost:      cost,
		Value:     hashed,
		CreatedAt: h.now(),
	}, nil
}

// Compare validates a password against a stored hash.
func (h *BcryptHasher) Compare(ctx context.Context, plain []byte, hash PasswordHash) error {
	if err := contextError(ctx); err != nil {
		return err
	}

	if hash.Algorithm != AlgorithmBcrypt {
		return ErrPasswordInvalidAlgorithm
	}
	if len(hash.Value) == 0 {
		return ErrPasswordInvalidHash
	}

	if err := bcrypt.CompareHashAndPassword(hash.Value, plain); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: bcrypt compare failed: %w", err)
	}

	return nil
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address format.
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
