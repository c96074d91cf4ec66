package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore aggregates admission decisions into Redis hashes: a
// cumulative total, per-minute buckets and per-route counters.
type RedisStatsStore struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the expiry of the per-minute, per-route and per-key
// hashes. The total never expires.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsTrackKeys also counts per key. Keys are unverified subjects, so
// cardinality is caller controlled.
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := decisionField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	minuteKey := s.minuteKey(at)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.routeKey(), route+":"+field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.routeKey(), s.ttl)
		}
	}

	if s.trackKeys && ev.Key != "" {
		keyKey := s.keyPrefix() + ev.Key
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("ratelimit: record stats: %w", err)
	}
	return nil
}

// Total reads the cumulative counters.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, error) {
	return s.readCounters(ctx, s.totalKey())
}

// Minute reads the counters of the minute containing at.
func (s *RedisStatsStore) Minute(ctx context.Context, at time.Time) (Counters, error) {
	return s.readCounters(ctx, s.minuteKey(at))
}

// Snapshot reads the total, the route counters and, when key tracking is on,
// every per-key hash under the prefix.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	total, err := s.Total(ctx)
	if err != nil {
		return StatsSnapshot{}, err
	}
	fields, err := s.rdb.HGetAll(ctx, s.routeKey()).Result()
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("ratelimit: read route stats: %w", err)
	}
	snap := StatsSnapshot{Total: total, Routes: make(map[string]Counters)}
	for field, v := range fields {
		i := strings.LastIndexByte(field, ':')
		if i <= 0 {
			continue
		}
		n, _ := strconv.ParseInt(v, 10, 64)
		c := snap.Routes[field[:i]]
		switch field[i+1:] {
		case "allowed":
			c.Allowed = n
		case "denied":
			c.Denied = n
		default:
			continue
		}
		snap.Routes[field[:i]] = c
	}

	if !s.trackKeys {
		return snap, nil
	}
	snap.Keys = make(map[string]Counters)
	iter := s.rdb.Scan(ctx, 0, s.keyPrefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		c, err := s.readCounters(ctx, iter.Val())
		if err != nil {
			return StatsSnapshot{}, err
		}
		snap.Keys[strings.TrimPrefix(iter.Val(), s.keyPrefix())] = c
	}
	if err := iter.Err(); err != nil {
		return StatsSnapshot{}, fmt.Errorf("ratelimit: scan key stats: %w", err)
	}
	return snap, nil
}

func (s *RedisStatsStore) readCounters(ctx context.Context, key string) (Counters, error) {
	values, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("ratelimit: read stats: %w", err)
	}
	var c Counters
	if v, ok := values["allowed"]; ok {
		c.Allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := values["denied"]; ok {
		c.Denied, _ = strconv.ParseInt(v, 10, 64)
	}
	return c, nil
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }
func (s *RedisStatsStore) routeKey() string { return s.prefix + ":route" }
func (s *RedisStatsStore) keyPrefix() string { return s.prefix + ":key:" }

func (s *RedisStatsStore) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func decisionField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
