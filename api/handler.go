// Package api exposes the user endpoints and the protected /v1 routes over
// httpx.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/taskgate/auth"
	"github.com/adeilh/taskgate/httpx"
	"github.com/adeilh/taskgate/ratelimit"
)

const (
	MessageEmailInUse     = "Email already registered, please use a different email"
	MessageBadCredentials = "Email/Password is not valid"
)

// Limiter is the view of the rate limiter the handlers need.
type Limiter interface {
	Config() ratelimit.Config
	AvailableTokens(key string) int64
	RetryAfter(key string) time.Duration
	ClearBucket(key string)
	ClearAllBuckets()
}

// Handler serves every route. Stats is optional; the other fields are
// required.
type Handler struct {
	Users   *auth.UserService
	Refresh *auth.RefreshFlow
	Limiter Limiter
	Stats   ratelimit.StatsReader
}

type registrationRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Country   string `json:"country"`
	Role      string `json:"role"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

type authenticationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

// RolesResponse is the body of PUT /v1/users/:email/roles.
type RolesResponse struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// MeResponse is the body of GET /v1/me.
type MeResponse struct {
	Principal   string    `json:"principal"`
	Authorities []string  `json:"authorities"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RateLimitResponse is the body of GET /v1/ratelimit.
type RateLimitResponse struct {
	Key               string  `json:"key"`
	Available         int64   `json:"available"`
	Capacity          int64   `json:"capacity"`
	RefillTokens      int64   `json:"refill_tokens"`
	RefillSeconds     float64 `json:"refill_seconds"`
	Strategy          string  `json:"strategy"`
	TokensPerRequest  int64   `json:"tokens_per_request"`
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
}

func (h *Handler) register(c httpx.Context) error {
	var req registrationRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}

	msg, err := h.Users.Register(c.Request().Context(), auth.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		Role:      req.Role,
	})
	if err != nil {
		var ve *auth.ValidationError
		switch {
		case errors.As(err, &ve):
			return httpx.HTTPError(httpx.StatusBadRequest, ve.Message)
		case errors.Is(err, auth.ErrUserEmailInUse):
			return httpx.HTTPError(httpx.StatusBadRequest, MessageEmailInUse)
		default:
			return err
		}
	}
	return c.String(httpx.StatusOK, msg)
}

func (h *Handler) authenticate(c httpx.Context) error {
	var req authenticationRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	token, user, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Str("email", req.Email).Msg("authentication failed")
		return httpx.HTTPError(httpx.StatusUnauthorized, MessageBadCredentials)
	}

	setBearer(c, token)
	return c.String(httpx.StatusOK, "Authentication successful for "+user.Email)
}

func (h *Handler) refresh(c httpx.Context) error {
	ctx := c.Request().Context()
	result, err := h.Refresh.Refresh(ctx, c.Request().Header.Get("Authorization"))
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Msg("token refresh rejected")
		return httpx.HTTPError(httpx.StatusUnauthorized, refreshFailureMessage(err))
	}
	setBearer(c, result.Token)
	return c.String(httpx.StatusOK, result.Subject)
}

func (h *Handler) me(c httpx.Context) error {
	sc, _ := auth.SecurityContextFrom(c.Request().Context())
	authorities := sc.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	return c.JSON(httpx.StatusOK, MeResponse{
		Principal:   sc.Principal,
		Authorities: authorities,
		ExpiresAt:   sc.Claims.ExpiresAt,
	})
}

func (h *Handler) rateLimit(c httpx.Context) error {
	sc, _ := auth.SecurityContextFrom(c.Request().Context())
	cfg := h.Limiter.Config()
	return c.JSON(httpx.StatusOK, RateLimitResponse{
		Key:               sc.Principal,
		Available:         h.Limiter.AvailableTokens(sc.Principal),
		Capacity:          cfg.Capacity,
		RefillTokens:      cfg.RefillTokens,
		RefillSeconds:     cfg.RefillInterval.Seconds(),
		Strategy:          string(cfg.Strategy),
		TokensPerRequest:  cfg.TokensPerRequest,
		RetryAfterSeconds: h.Limiter.RetryAfter(sc.Principal).Seconds(),
	})
}

func (h *Handler) clearBucket(c httpx.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return httpx.HTTPError(httpx.StatusBadRequest, "bucket key is required")
	}
	h.Limiter.ClearBucket(key)
	zerolog.Ctx(c.Request().Context()).Info().Str("key", key).Msg("cleared rate limit bucket")
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) clearAllBuckets(c httpx.Context) error {
	h.Limiter.ClearAllBuckets()
	return c.NoContent(httpx.StatusNoContent)
}

func (h *Handler) rateLimitStats(c httpx.Context) error {
	if h.Stats == nil {
		return httpx.HTTPError(httpx.StatusNotFound, "rate limit statistics are not enabled")
	}
	snap, err := h.Stats.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, snap)
}

func (h *Handler) updateRoles(c httpx.Context) error {
	var req rolesRequest
	if err := c.Bind(&req); err != nil {
		return httpx.HTTPError(httpx.StatusBadRequest, "invalid request body")
	}
	email := c.Param("email")

	roles, err := h.Users.ChangeRoles(c.Request().Context(), email, req.Roles)
	if err != nil {
		var ve *auth.ValidationError
		switch {
		case errors.As(err, &ve):
			return httpx.HTTPError(httpx.StatusBadRequest, ve.Message)
		case errors.Is(err, auth.ErrUserNotFound):
			return httpx.HTTPError(httpx.StatusNotFound, "User not found")
		default:
			return err
		}
	}
	return c.JSON(httpx.StatusOK, RolesResponse{Email: strings.TrimSpace(email), Roles: roles})
}

func setBearer(c httpx.Context, token string) {
	c.Response().Header().Set("Authorization", "Bearer "+token)
}

func refreshFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenNotFound), errors.Is(err, auth.ErrTokenInvalidInput):
		return "Bearer token is missing"
	case errors.Is(err, auth.ErrUserNotFound):
		return "User not found for token subject"
	case errors.Is(err, auth.ErrTokenExpired):
		return "Token has expired"
	default:
		return http.StatusText(http.StatusUnauthorized) + ": invalid token"
	}
}
