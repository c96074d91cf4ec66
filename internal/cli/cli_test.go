package cli

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/adeilh/taskgate/api"
	"github.com/adeilh/taskgate/auth"
	"github.com/adeilh/taskgate/config"
	"github.com/adeilh/taskgate/httpx"
	"github.com/adeilh/taskgate/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenIssueAndInspect(t *testing.T) {
	t.Setenv("TASKGATE_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "issue", "--subject", "a@x.com", "--role", "ADMIN,USER")
	if err != nil {
		t.Fatalf("token issue error = %v", err)
	}
	token := strings.TrimSpace(out)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   []byte(testSecret),
		Issuer:   "taskgate",
		Audience: "taskgate-clients",
		Validity: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	claims, err := tokens.Validate(token, time.Now())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "a@x.com" || !claims.Roles.Contains("ADMIN") || !claims.Roles.Contains("USER") {
		t.Fatalf("issued claims = %+v", claims)
	}

	out, err = execute(t, "token", "inspect", token)
	if err != nil {
		t.Fatalf("token inspect error = %v", err)
	}
	for _, want := range []string{"a@x.com", "ROLE_ADMIN", "ROLE_USER", "taskgate-clients", "valid"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestTokenInspectForeignSignature(t *testing.T) {
	t.Setenv("TASKGATE_JWT_SECRET", testSecret)

	foreign, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:   "taskgate",
		Validity: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	token, err := foreign.Issue("a@x.com", nil, time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	out, err := execute(t, "token", "inspect", "Bearer "+token)
	if err != nil {
		t.Fatalf("token inspect error = %v", err)
	}
	if !strings.Contains(out, auth.ErrTokenSignatureInvalid.Error()) {
		t.Errorf("inspect output should report the signature failure:\n%s", out)
	}

	if _, err := execute(t, "token", "inspect", "garbage"); err == nil {
		t.Error("inspecting an undecodable token should fail")
	}
}

func TestTokenIssueRequiresSecret(t *testing.T) {
	t.Setenv("TASKGATE_JWT_SECRET", "")

	_, err := execute(t, "token", "issue", "--subject", "a@x.com")
	if !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("token issue error = %v, want %v", err, config.ErrInvalid)
	}
}

func newFakeServer(t *testing.T) *httpx.TestServer {
	t.Helper()
	srv := httpx.NewServer()
	srv.RegisterRoutes(func(a *httpx.App) {
		a.POST("/user/authenticate", func(c httpx.Context) error {
			c.Response().Header().Set("Authorization", "Bearer issued-token")
			return c.String(http.StatusOK, "Authentication successful for a@x.com")
		})
		a.POST("/user/refresh", func(c httpx.Context) error {
			if c.Request().Header.Get("Authorization") != "Bearer old-token" {
				return httpx.HTTPError(http.StatusUnauthorized, "Bearer token is missing")
			}
			c.Response().Header().Set("Authorization", "Bearer new-token")
			return c.String(http.StatusOK, "a@x.com")
		})
		a.GET("/v1/ratelimit", func(c httpx.Context) error {
			return c.JSON(http.StatusOK, api.RateLimitResponse{
				Key:              "a@x.com",
				Available:        7,
				Capacity:         10,
				RefillTokens:     10,
				RefillSeconds:    60,
				Strategy:         "intervally",
				TokensPerRequest: 1,
			})
		})
		a.GET("/v1/ratelimit/stats", func(c httpx.Context) error {
			return c.JSON(http.StatusOK, ratelimit.StatsSnapshot{
				Total: ratelimit.Counters{Allowed: 9, Denied: 2},
				Routes: map[string]ratelimit.Counters{
					"GET /v1/me":        {Allowed: 6, Denied: 2},
					"GET /v1/ratelimit": {Allowed: 3},
				},
			})
		})
		a.PUT("/v1/users/:email/roles", func(c httpx.Context) error {
			var in struct {
				Roles []string `json:"roles"`
			}
			if err := c.Bind(&in); err != nil {
				return err
			}
			if c.Param("email") != "a@x.com" || len(in.Roles) != 2 {
				return httpx.HTTPError(http.StatusBadRequest, "unexpected roles request")
			}
			return c.JSON(http.StatusOK, api.RolesResponse{Email: "a@x.com", Roles: in.Roles})
		})
		a.DELETE("/v1/ratelimit/buckets/:key", func(c httpx.Context) error {
			if c.Param("key") != "a@x.com" {
				return httpx.HTTPError(http.StatusBadRequest, "unexpected key")
			}
			return c.NoContent(http.StatusNoContent)
		})
	})
	ts := httpx.NewTestServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientCommands(t *testing.T) {
	ts := newFakeServer(t)

	out, err := execute(t, "--server", ts.BaseURL(), "login", "--email", "a@x.com", "--password", "secret1")
	if err != nil {
		t.Fatalf("login error = %v", err)
	}
	if strings.TrimSpace(out) != "issued-token" {
		t.Errorf("login output = %q, want issued-token", out)
	}

	out, err = execute(t, "--server", ts.BaseURL(), "refresh", "--token", "old-token")
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if strings.TrimSpace(out) != "new-token" {
		t.Errorf("refresh output = %q, want new-token", out)
	}

	_, err = execute(t, "--server", ts.BaseURL(), "refresh", "--token", "stale")
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("refresh error = %v, want a 401 StatusError", err)
	}

	out, err = execute(t, "--server", ts.BaseURL(), "ratelimit", "status", "--token", "t")
	if err != nil {
		t.Fatalf("ratelimit status error = %v", err)
	}
	for _, want := range []string{"a@x.com", "7 / 10", "intervally"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "--server", ts.BaseURL(), "ratelimit", "clear", "a@x.com", "--token", "t"); err != nil {
		t.Fatalf("ratelimit clear error = %v", err)
	}

	out, err = execute(t, "--server", ts.BaseURL(), "ratelimit", "stats", "--token", "t")
	if err != nil {
		t.Fatalf("ratelimit stats error = %v", err)
	}
	for _, want := range []string{"GET /v1/me", "GET /v1/ratelimit", "Total", "9"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Key") {
		t.Errorf("stats output has a key table without key counters:\n%s", out)
	}

	if _, err := execute(t, "--server", ts.BaseURL(), "users", "roles", "a@x.com", "--role", "USER", "--role", "ADMIN", "--token", "t"); err != nil {
		t.Fatalf("users roles error = %v", err)
	}
}
