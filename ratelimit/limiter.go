// Package ratelimit admits or rejects units of work per identity key using
// in-memory token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Limiter owns one Bucket per key. Buckets are created lazily on first use and
// live until cleared.
type Limiter struct {
	cfg     Config
	buckets sync.Map
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Limiter)

// WithClock injects the time source used for refills.
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(cfg Config, opts ...Option) (*Limiter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		cfg:    cfg,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

func (l *Limiter) Config() Config { return l.cfg }

// ResolveBucket returns the bucket for key, creating a full one if none exists.
// Concurrent first access for the same key always yields the same bucket.
func (l *Limiter) ResolveBucket(key string) Bucket {
	if existing, ok := l.buckets.Load(key); ok {
		return existing.(Bucket)
	}
	actual, _ := l.buckets.LoadOrStore(key, newBucket(l.cfg, l.now()))
	return actual.(Bucket)
}

// TryConsume takes the configured per-request cost from key's bucket.
func (l *Limiter) TryConsume(key string) bool {
	return l.TryConsumeN(key, l.cfg.TokensPerRequest)
}

// TryConsumeN takes cost tokens from key's bucket. Exhaustion is reported as
// false, never as an error.
func (l *Limiter) TryConsumeN(key string, cost int64) bool {
	if l.ResolveBucket(key).TryConsume(cost, l.now()) {
		return true
	}
	l.logger.Warn().Str("key", key).Int64("cost", cost).Msg("rate limit exceeded")
	return false
}

// AvailableTokens reports whole tokens left for key after refilling.
func (l *Limiter) AvailableTokens(key string) int64 {
	return l.ResolveBucket(key).Available(l.now())
}

// RetryAfter reports how long until key can afford one request.
func (l *Limiter) RetryAfter(key string) time.Duration {
	return l.ResolveBucket(key).Wait(l.cfg.TokensPerRequest, l.now())
}

// ClearBucket drops key's bucket; the next use starts at full capacity.
func (l *Limiter) ClearBucket(key string) {
	l.buckets.Delete(key)
}

func (l *Limiter) ClearAllBuckets() {
	l.buckets.Clear()
	l.logger.Info().Msg("cleared all rate limit buckets")
}
