package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket is the token-bucket state for a single key. Implementations are safe
// for concurrent use; refill and consumption happen as one atomic step.
type Bucket interface {
	Capacity() int64
	Strategy() Strategy
	// TryConsume refills up to now and takes n tokens when enough are available.
	TryConsume(n int64, now time.Time) bool
	// Available refills up to now and reports whole tokens left.
	Available(now time.Time) int64
	// Wait reports how long until n tokens can be taken, zero if they can be now.
	Wait(n int64, now time.Time) time.Duration
}

func newBucket(cfg Config, now time.Time) Bucket {
	if cfg.Strategy == StrategyGreedy {
		return newGreedyBucket(cfg)
	}
	return newIntervalBucket(cfg, now)
}

type greedyBucket struct {
	capacity int64
	lim      *rate.Limiter
}

func newGreedyBucket(cfg Config) *greedyBucket {
	perSecond := float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()
	return &greedyBucket{
		capacity: cfg.Capacity,
		lim:      rate.NewLimiter(rate.Limit(perSecond), int(cfg.Capacity)),
	}
}

func (b *greedyBucket) Capacity() int64 { return b.capacity }

func (b *greedyBucket) Strategy() Strategy { return StrategyGreedy }

func (b *greedyBucket) TryConsume(n int64, now time.Time) bool {
	if n <= 0 {
		return true
	}
	return b.lim.AllowN(now, int(n))
}

func (b *greedyBucket) Available(now time.Time) int64 {
	tokens := b.lim.TokensAt(now)
	if tokens <= 0 {
		return 0
	}
	return int64(math.Floor(tokens))
}

func (b *greedyBucket) Wait(n int64, now time.Time) time.Duration {
	if n > b.capacity {
		return time.Duration(math.MaxInt64)
	}
	deficit := float64(n) - b.lim.TokensAt(now)
	if deficit <= 0 {
		return 0
	}
	seconds := deficit / float64(b.lim.Limit())
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}

type intervalBucket struct {
	mu         sync.Mutex
	capacity   int64
	refill     int64
	interval   time.Duration
	tokens     int64
	lastRefill time.Time
}

func newIntervalBucket(cfg Config, now time.Time) *intervalBucket {
	return &intervalBucket{
		capacity:   cfg.Capacity,
		refill:     cfg.RefillTokens,
		interval:   cfg.RefillInterval,
		tokens:     cfg.Capacity,
		lastRefill: now,
	}
}

func (b *intervalBucket) Capacity() int64 { return b.capacity }

func (b *intervalBucket) Strategy() Strategy { return StrategyIntervally }

func (b *intervalBucket) TryConsume(n int64, now time.Time) bool {
	if n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

func (b *intervalBucket) Available(now time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	return b.tokens
}

func (b *intervalBucket) Wait(n int64, now time.Time) time.Duration {
	if n > b.capacity {
		return time.Duration(math.MaxInt64)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	if b.tokens >= n {
		return 0
	}
	periods := (n - b.tokens + b.refill - 1) / b.refill
	ready := b.lastRefill.Add(time.Duration(periods) * b.interval)
	return ready.Sub(now)
}

// refillLocked adds one batch per whole interval elapsed and carries the
// remainder forward so partial intervals are not lost.
func (b *intervalBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	periods := int64(elapsed / b.interval)
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * b.interval)
	if b.tokens >= b.capacity {
		return
	}
	if periods >= (b.capacity-b.tokens+b.refill-1)/b.refill {
		b.tokens = b.capacity
		return
	}
	b.tokens += periods * b.refill
}
