package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a bucket regains tokens.
type Strategy string

const (
	// StrategyGreedy accrues tokens continuously and fractionally.
	StrategyGreedy Strategy = "greedy"
	// StrategyIntervally accrues the whole refill batch once per elapsed interval.
	StrategyIntervally Strategy = "intervally"
)

var ErrInvalidConfig = errors.New("ratelimit: invalid config")

// Config describes every bucket created by a Limiter.
type Config struct {
	Capacity         int64
	RefillTokens     int64
	RefillInterval   time.Duration
	Strategy         Strategy
	TokensPerRequest int64
}

// DefaultConfig returns ten requests per minute, refilled in one batch.
func DefaultConfig() Config {
	return Config{
		Capacity:         10,
		RefillTokens:     10,
		RefillInterval:   time.Minute,
		Strategy:         StrategyIntervally,
		TokensPerRequest: 1,
	}
}

// StrategyFor maps the boolean "greedy" switch used in configuration files.
func StrategyFor(greedy bool) Strategy {
	if greedy {
		return StrategyGreedy
	}
	return StrategyIntervally
}

// ParseStrategy accepts "greedy" or "intervally" in any case.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyGreedy:
		return StrategyGreedy, nil
	case StrategyIntervally, "":
		return StrategyIntervally, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
	}
}

func (c Config) Validate() error {
	switch {
	case c.Capacity < 1:
		return fmt.Errorf("%w: capacity must be at least 1", ErrInvalidConfig)
	case c.RefillTokens < 1:
		return fmt.Errorf("%w: refill tokens must be at least 1", ErrInvalidConfig)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive", ErrInvalidConfig)
	case c.TokensPerRequest < 1:
		return fmt.Errorf("%w: tokens per request must be at least 1", ErrInvalidConfig)
	case c.TokensPerRequest > c.Capacity:
		return fmt.Errorf("%w: tokens per request exceeds capacity", ErrInvalidConfig)
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	return nil
}

// withDefaults fills an unset strategy and per-request cost.
func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyIntervally
	}
	if c.TokensPerRequest == 0 {
		c.TokensPerRequest = 1
	}
	return c
}
