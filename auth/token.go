package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum HMAC secret length in bytes (256 bits).
const MinSecretLength = 32

// DefaultAlgorithm is pinned when TokenConfig.Algorithm is empty.
const DefaultAlgorithm = "HS256"

const roleClaim = "role"

// TokenConfig holds the fixed issuance parameters.
type TokenConfig struct {
	Secret    []byte
	Issuer    string
	Audience  string
	Validity  time.Duration
	Algorithm string
}

// TokenService issues and validates HMAC-signed bearer tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	method   *jwt.SigningMethodHMAC
	issuer   string
	audience string
	validity time.Duration
	newID    func() string
	parser   *jwt.Parser
}

type TokenOption func(*TokenService)

// WithTokenIDs overrides the jti generator.
func WithTokenIDs(fn func() string) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSigningKey
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSigningKey, MinSecretLength)
	}
	if cfg.Validity < time.Second {
		return nil, fmt.Errorf("%w: validity must be at least one second", ErrInvalidTokenConfig)
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidTokenConfig, alg)
	}

	s := &TokenService{
		secret:   append([]byte(nil), cfg.Secret...),
		method:   method,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		validity: cfg.Validity,
		newID:    uuid.NewString,
		parser:   jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *TokenService) Algorithm() string { return s.method.Alg() }

func (s *TokenService) Validity() time.Duration { return s.validity }

// Issue signs a token for subject. Extra claims are merged first so the
// registered claims always win. An empty subject is carried through as-is.
func (s *TokenService) Issue(subject string, extraClaims map[string]string, now time.Time) (string, error) {
	issuedAt := now.Truncate(time.Second)

	claims := make(jwt.MapClaims, len(extraClaims)+7)
	for k, v := range extraClaims {
		claims[k] = v
	}
	if role, ok := extraClaims[roleClaim]; ok {
		claims[roleClaim] = ParseRoles(role).String()
	}
	claims["jti"] = s.newID()
	claims["sub"] = subject
	claims["iss"] = s.issuer
	claims["iat"] = jwt.NewNumericDate(issuedAt)
	claims["exp"] = jwt.NewNumericDate(issuedAt.Add(s.validity))
	if s.audience != "" {
		claims["aud"] = s.audience
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies, in order, structure and signature, the pinned algorithm,
// the issuer and the expiry. The audience claim is decoded but not checked.
func (s *TokenService) Validate(raw string, now time.Time) (Claims, error) {
	mc := jwt.MapClaims{}
	token, err := s.parser.ParseWithClaims(raw, mc, s.keyFunc)
	if err != nil {
		return Claims{}, classifyError(err)
	}
	if token.Method.Alg() != s.method.Alg() {
		return Claims{}, ErrTokenAlgorithmMismatch
	}

	claims, err := claimsFromMap(mc, token.Method.Alg())
	if err != nil {
		return Claims{}, err
	}
	if claims.Issuer != s.issuer {
		return Claims{}, ErrTokenIssuerMismatch
	}
	if claims.ExpiresAt.IsZero() {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	if claims.ExpiredAt(now) {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

// Matches cross-checks validated claims against a directory-resident identity.
func (s *TokenService) Matches(claims Claims, expectedSubject string, now time.Time) error {
	if claims.Subject != expectedSubject {
		return ErrIdentityMismatch
	}
	if claims.ExpiredAt(now) {
		return ErrTokenExpired
	}
	return nil
}

// ExtractClaims decodes the payload without checking the signature. Callers
// that need integrity must use Validate.
func (s *TokenService) ExtractClaims(raw string) (Claims, error) {
	mc := jwt.MapClaims{}
	token, _, err := s.parser.ParseUnverified(raw, mc)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	return claimsFromMap(mc, token.Method.Alg())
}

// ExtractClaim projects a single value out of an unverified token.
func ExtractClaim[T any](v TokenValidator, raw string, project func(Claims) T) (T, error) {
	claims, err := v.ExtractClaims(raw)
	if err != nil {
		var zero T
		return zero, err
	}
	return project(claims), nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrTokenAlgorithmMismatch
	}
	return s.secret, nil
}

func classifyError(err error) error {
	switch {
	case errors.Is(err, ErrTokenAlgorithmMismatch):
		return ErrTokenAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// unknown or missing alg header
		return ErrTokenAlgorithmMismatch
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}

var registeredClaims = map[string]struct{}{
	"jti": {}, "sub": {}, "iss": {}, "aud": {}, "iat": {}, "exp": {}, "nbf": {}, roleClaim: {},
}

func claimsFromMap(mc jwt.MapClaims, alg string) (Claims, error) {
	var (
		c   = Claims{Algorithm: alg}
		err error
	)
	if c.Subject, err = mc.GetSubject(); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if c.Issuer, err = mc.GetIssuer(); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	c.Audience = []string(aud)

	iat, err := mc.GetIssuedAt()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if iat != nil {
		c.IssuedAt = iat.Time.UTC()
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time.UTC()
	}

	if id, ok := mc["jti"].(string); ok {
		c.ID = id
	}
	if role, ok := mc[roleClaim].(string); ok {
		c.Roles = ParseRoles(role)
	}
	for k, v := range mc {
		if _, skip := registeredClaims[k]; skip {
			continue
		}
		if str, ok := v.(string); ok {
			if c.Extra == nil {
				c.Extra = make(map[string]string)
			}
			c.Extra[k] = str
		}
	}
	return c, nil
}
