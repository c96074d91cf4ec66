package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTokens(t *testing.T, mutate ...func(*TokenConfig)) *TokenService {
	t.Helper()
	cfg := TokenConfig{
		Secret:   testSecret,
		Issuer:   "taskgate",
		Audience: "taskgate-clients",
		Validity: time.Hour,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	svc, err := NewTokenService(cfg)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func TestNewTokenService_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TokenConfig
		wantErr error
	}{
		{"missing secret", TokenConfig{Validity: time.Hour}, ErrMissingSigningKey},
		{"short secret", TokenConfig{Secret: []byte("short"), Validity: time.Hour}, ErrWeakSigningKey},
		{"zero validity", TokenConfig{Secret: testSecret}, ErrInvalidTokenConfig},
		{"rsa algorithm", TokenConfig{Secret: testSecret, Validity: time.Hour, Algorithm: "RS256"}, ErrInvalidTokenConfig},
		{"unknown algorithm", TokenConfig{Secret: testSecret, Validity: time.Hour, Algorithm: "XX1"}, ErrInvalidTokenConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenService(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTokenService() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	svc, err := NewTokenService(TokenConfig{Secret: testSecret, Validity: time.Minute})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if svc.Algorithm() != DefaultAlgorithm {
		t.Errorf("Algorithm() = %s, want %s", svc.Algorithm(), DefaultAlgorithm)
	}
}

func TestTokenService_IssueValidateRoundTrip(t *testing.T) {
	svc := newTestTokens(t)

	raw, err := svc.Issue("a@x.com", map[string]string{"role": "USER"}, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("Issue() = %q, want three dot-separated segments", raw)
	}

	claims, err := svc.Validate(raw, testEpoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "a@x.com" {
		t.Errorf("Subject = %q, want a@x.com", claims.Subject)
	}
	if claims.Issuer != "taskgate" {
		t.Errorf("Issuer = %q, want taskgate", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "taskgate-clients" {
		t.Errorf("Audience = %v, want [taskgate-clients]", claims.Audience)
	}
	if claims.Roles.String() != "USER" {
		t.Errorf("Roles = %q, want USER", claims.Roles)
	}
	if claims.Algorithm != "HS256" {
		t.Errorf("Algorithm = %q, want HS256", claims.Algorithm)
	}
	if claims.ID == "" {
		t.Error("ID is empty")
	}
	if !claims.IssuedAt.Equal(testEpoch) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, testEpoch)
	}
	if want := testEpoch.Add(time.Hour); !claims.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, want)
	}
}

func TestTokenService_IssueExtraClaims(t *testing.T) {
	svc := newTestTokens(t)

	raw, err := svc.Issue("a@x.com", map[string]string{
		"tenant": "acme",
		"sub":    "mallory@x.com",
		"role":   "ROLE_ADMIN, USER,ADMIN",
	}, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.Validate(raw, testEpoch)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "a@x.com" {
		t.Errorf("Subject = %q, registered claim must win over extras", claims.Subject)
	}
	if claims.Extra["tenant"] != "acme" {
		t.Errorf("Extra[tenant] = %q, want acme", claims.Extra["tenant"])
	}
	if claims.Roles.String() != "ADMIN,USER" {
		t.Errorf("Roles = %q, want ADMIN,USER", claims.Roles)
	}
}

func TestTokenService_IssueIDs(t *testing.T) {
	svc := newTestTokens(t)

	first, err := svc.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	second, err := svc.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if first == second {
		t.Error("tokens issued at the same instant should differ by jti")
	}

	fixed, err := NewTokenService(TokenConfig{Secret: testSecret, Validity: time.Hour}, WithTokenIDs(func() string { return "jti-1" }))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	raw, err := fixed.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := fixed.ExtractClaims(raw)
	if err != nil {
		t.Fatalf("ExtractClaims() error = %v", err)
	}
	if claims.ID != "jti-1" {
		t.Errorf("ID = %q, want jti-1", claims.ID)
	}
}

func TestTokenService_Expiry(t *testing.T) {
	svc := newTestTokens(t)

	raw, err := svc.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"just issued", testEpoch, nil},
		{"one second before expiry", testEpoch.Add(time.Hour - time.Second), nil},
		{"exactly at expiry", testEpoch.Add(time.Hour), ErrTokenExpired},
		{"after expiry", testEpoch.Add(2 * time.Hour), ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(raw, tt.at)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenService_ValidateRejects(t *testing.T) {
	svc := newTestTokens(t)

	hs512 := newTestTokens(t, func(c *TokenConfig) { c.Algorithm = "HS512" })
	hs512Token, err := hs512.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherIssuer := newTestTokens(t, func(c *TokenConfig) { c.Issuer = "someone-else" })
	otherIssuerToken, err := otherIssuer.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherSecret := newTestTokens(t, func(c *TokenConfig) { c.Secret = []byte("ffffffffffffffffffffffffffffffff") })
	otherSecretToken, err := otherSecret.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "a@x.com",
		"iss": "taskgate",
		"exp": testEpoch.Add(time.Hour).Unix(),
	})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "a@x.com", "iss": "taskgate"})
	noExpToken, err := noExp.SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	good, err := svc.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", ErrTokenMalformed},
		{"garbage", "not-a-token", ErrTokenMalformed},
		{"two segments", "abc.def", ErrTokenMalformed},
		{"wrong algorithm", hs512Token, ErrTokenAlgorithmMismatch},
		{"none algorithm", noneToken, ErrTokenAlgorithmMismatch},
		{"wrong issuer", otherIssuerToken, ErrTokenIssuerMismatch},
		{"wrong secret", otherSecretToken, ErrTokenSignatureInvalid},
		{"missing exp", noExpToken, ErrTokenMalformed},
		{"tampered payload", tampered, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.raw, testEpoch)
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenService_ExtractClaimsSkipsVerification(t *testing.T) {
	svc := newTestTokens(t)
	other := newTestTokens(t, func(c *TokenConfig) {
		c.Secret = []byte("ffffffffffffffffffffffffffffffff")
		c.Issuer = "elsewhere"
	})

	raw, err := other.Issue("b@x.com", map[string]string{"role": "ADMIN"}, testEpoch.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := svc.ExtractClaims(raw)
	if err != nil {
		t.Fatalf("ExtractClaims() error = %v", err)
	}
	if claims.Subject != "b@x.com" || claims.Issuer != "elsewhere" {
		t.Errorf("ExtractClaims() = %+v", claims)
	}

	subject, err := ExtractClaim(svc, raw, func(c Claims) string { return c.Subject })
	if err != nil {
		t.Fatalf("ExtractClaim() error = %v", err)
	}
	if subject != "b@x.com" {
		t.Errorf("ExtractClaim() = %q, want b@x.com", subject)
	}

	roles, err := ExtractClaim(svc, raw, func(c Claims) RoleSet { return c.Roles })
	if err != nil {
		t.Fatalf("ExtractClaim() error = %v", err)
	}
	if !roles.Contains("ADMIN") {
		t.Errorf("ExtractClaim() roles = %v, want ADMIN", roles)
	}

	if _, err := ExtractClaim(svc, "garbage", func(c Claims) string { return c.Subject }); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("ExtractClaim() error = %v, want %v", err, ErrTokenMalformed)
	}
}

func TestTokenService_EmptySubject(t *testing.T) {
	svc := newTestTokens(t)

	raw, err := svc.Issue("", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := svc.Validate(raw, testEpoch)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "" {
		t.Errorf("Subject = %q, want empty", claims.Subject)
	}
	if claims.Roles.Authorities() != nil {
		t.Errorf("Authorities() = %v, want none", claims.Roles.Authorities())
	}
}

func TestTokenService_Matches(t *testing.T) {
	svc := newTestTokens(t)

	raw, err := svc.Issue("a@x.com", nil, testEpoch)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := svc.Validate(raw, testEpoch)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := svc.Matches(claims, "a@x.com", testEpoch); err != nil {
		t.Errorf("Matches() error = %v", err)
	}
	if err := svc.Matches(claims, "b@x.com", testEpoch); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("Matches() error = %v, want %v", err, ErrIdentityMismatch)
	}
	if err := svc.Matches(claims, "a@x.com", testEpoch.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Matches() error = %v, want %v", err, ErrTokenExpired)
	}
}
