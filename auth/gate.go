package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/adeilh/taskgate/ratelimit"
)

// Decision is the terminal state of the gate for one request.
type Decision int

const (
	// Passthrough lets the request continue without an identity.
	Passthrough Decision = iota
	// RejectedRateLimit short-circuits the request with 429.
	RejectedRateLimit
	// Authenticated attaches a SecurityContext and continues.
	Authenticated
)

func (d Decision) String() string {
	switch d {
	case RejectedRateLimit:
		return "rejected_rate_limit"
	case Authenticated:
		return "authenticated"
	default:
		return "passthrough"
	}
}

// Outcome describes how the gate resolved a request.
type Outcome struct {
	Decision Decision
	// Key is the unverified subject used for rate limiting, if any.
	Key     string
	Context SecurityContext
	// Reason is kept for diagnostics only and never shown to the caller.
	Reason error
}

// Gate is the per-request authentication pipeline: extract the bearer
// credential, spend rate-limit budget keyed by its unverified subject, then
// validate it and attach a SecurityContext. Only rate-limit exhaustion stops
// the request; every other failure leaves it anonymous.
type Gate struct {
	tokens  TokenValidator
	limiter RateLimiter
	cfg     gateConfig
}

func NewGate(tokens TokenValidator, limiter RateLimiter, opts ...GateOption) (*Gate, error) {
	if tokens == nil {
		return nil, errors.New("auth: gate requires a token validator")
	}
	if limiter == nil {
		return nil, errors.New("auth: gate requires a rate limiter")
	}
	return &Gate{tokens: tokens, limiter: limiter, cfg: newGateConfig(opts...)}, nil
}

func (g *Gate) Handler(next http.Handler) http.Handler {
	if g == nil {
		panic("auth: gate is nil")
	}
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		outcome := g.Evaluate(r)
		switch outcome.Decision {
		case RejectedRateLimit:
			g.cfg.rateLimited(w, r, g.limiter.RetryAfter(outcome.Key))
		case Authenticated:
			next.ServeHTTP(w, r.WithContext(WithSecurityContext(r.Context(), outcome.Context)))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// Evaluate runs the decision pipeline without touching the response.
func (g *Gate) Evaluate(r *http.Request) Outcome {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	raw, err := g.cfg.extractor(r)
	if err != nil {
		return Outcome{Decision: Passthrough, Reason: err}
	}

	subject, err := ExtractClaim(g.tokens, raw, func(c Claims) string { return c.Subject })
	if err != nil {
		logger.Debug().Err(err).Msg("bearer token could not be decoded")
		return Outcome{Decision: Passthrough, Reason: err}
	}
	if subject == "" {
		return Outcome{Decision: Passthrough, Reason: ErrSubjectMissing}
	}

	allowed := g.limiter.TryConsume(subject)
	g.record(ctx, r, subject, allowed)
	if !allowed {
		return Outcome{Decision: RejectedRateLimit, Key: subject, Reason: ErrRateLimitExceeded}
	}

	now := g.cfg.now()
	claims, err := g.tokens.Validate(raw, now)
	if err != nil {
		logger.Debug().Err(err).Str("subject", subject).Msg("bearer token rejected")
		return Outcome{Decision: Passthrough, Key: subject, Reason: err}
	}

	if existing, ok := SecurityContextFrom(ctx); ok {
		return Outcome{Decision: Passthrough, Key: subject, Context: existing}
	}

	if g.cfg.directory != nil {
		user, err := g.cfg.directory.FindByEmail(ctx, claims.Subject)
		if err != nil {
			logger.Debug().Err(err).Str("subject", subject).Msg("token subject not in directory")
			return Outcome{Decision: Passthrough, Key: subject, Reason: err}
		}
		if err := g.tokens.Matches(claims, user.Email, now); err != nil {
			logger.Debug().Err(err).Str("subject", subject).Msg("token subject does not match directory")
			return Outcome{Decision: Passthrough, Key: subject, Reason: err}
		}
	}

	return Outcome{
		Decision: Authenticated,
		Key:      subject,
		Context: SecurityContext{
			Principal:   claims.Subject,
			Authorities: claims.Roles.Authorities(),
			Claims:      claims,
		},
	}
}

func (g *Gate) record(ctx context.Context, r *http.Request, key string, allowed bool) {
	if g.cfg.stats == nil {
		return
	}
	ev := ratelimit.StatsEvent{
		Key:     key,
		Allowed: allowed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      g.cfg.now(),
	}
	if err := g.cfg.stats.Record(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record rate limit stats")
	}
}
