package auth

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/taskgate/ratelimit"
)

var (
	ErrTokenNotFound     = errors.New("auth: token not found")
	ErrTokenInvalidInput = errors.New("auth: invalid token source")
)

// RateLimitMessage is the fixed message of a rate-limit rejection.
const RateLimitMessage = "Too many requests. Please try again later."

var rateLimitBody, _ = json.Marshal(map[string]string{"error": RateLimitMessage})

// RateLimiter admits units of work per key.
type RateLimiter interface {
	TryConsume(key string) bool
	RetryAfter(key string) time.Duration
}

type TokenExtractor func(*http.Request) (string, error)

type GateSkipper func(*http.Request) bool

// RateLimitHandler writes the rejection for an exhausted key.
type RateLimitHandler func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

type GateOption func(*gateConfig)

type gateConfig struct {
	extractor   TokenExtractor
	skipper     GateSkipper
	directory   Directory
	stats       ratelimit.StatsStore
	now         func() time.Time
	rateLimited RateLimitHandler
}

func newGateConfig(opts ...GateOption) gateConfig {
	cfg := gateConfig{
		extractor:   BearerTokenExtractor(),
		skipper:     defaultSkipper,
		now:         time.Now,
		rateLimited: WriteRateLimited,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func WithTokenExtractor(extractor TokenExtractor) GateOption {
	return func(cfg *gateConfig) {
		if extractor != nil {
			cfg.extractor = extractor
		}
	}
}

// WithSkipper bypasses the gate entirely for matching requests.
func WithSkipper(skipper GateSkipper) GateOption {
	return func(cfg *gateConfig) {
		if skipper != nil {
			cfg.skipper = skipper
		}
	}
}

// WithDirectory additionally requires validated subjects to exist in dir.
func WithDirectory(dir Directory) GateOption {
	return func(cfg *gateConfig) {
		cfg.directory = dir
	}
}

// WithStats records every admission decision into store.
func WithStats(store ratelimit.StatsStore) GateOption {
	return func(cfg *gateConfig) {
		cfg.stats = store
	}
}

func WithClock(fn func() time.Time) GateOption {
	return func(cfg *gateConfig) {
		if fn != nil {
			cfg.now = fn
		}
	}
}

func WithRateLimitHandler(handler RateLimitHandler) GateOption {
	return func(cfg *gateConfig) {
		if handler != nil {
			cfg.rateLimited = handler
		}
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor() TokenExtractor {
	return func(r *http.Request) (string, error) {
		return BearerToken(r.Header.Get("Authorization"))
	}
}

// BearerToken parses the value of an Authorization header.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrTokenNotFound
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrTokenInvalidInput
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrTokenInvalidInput
	}
	return token, nil
}

// WriteRateLimited answers 429 with the fixed JSON body and a Retry-After
// header rounded up to whole seconds.
func WriteRateLimited(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
	seconds := int64(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(rateLimitBody)
}

func defaultSkipper(*http.Request) bool { return false }
