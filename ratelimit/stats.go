package ratelimit

import (
	"context"
	"sync"
	"time"
)

// StatsEvent records one admission decision.
type StatsEvent struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// StatsStore persists admission decisions. Callers treat failures as
// best-effort and never fail a request because of them.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// StatsReader is implemented by stores whose counters can be read back.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}

// StatsBackend both records and reads back counters.
type StatsBackend interface {
	StatsStore
	StatsReader
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsSnapshot is a point-in-time copy of the counters. Keys is only
// populated when per-key tracking is enabled.
type StatsSnapshot struct {
	Total  Counters            `json:"total"`
	Routes map[string]Counters `json:"routes"`
	Keys   map[string]Counters `json:"keys,omitempty"`
}

// OverflowEntry collects counts for routes or keys seen after a
// MemoryStatsStore reached its entry limit.
const OverflowEntry = "(other)"

const defaultMaxStatsEntries = 1024

// MemoryStatsStore keeps counters in process. Nothing expires; the route and
// key maps are capped instead.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byRoute    map[string]Counters
	byKey      map[string]Counters
	trackKeys  bool
	maxEntries int
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithMemoryTrackKeys also counts per key. Keys are unverified subjects, so
// they are off by default.
func WithMemoryTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMemoryMaxEntries caps the distinct routes and keys held in memory.
func WithMemoryMaxEntries(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:    make(map[string]Counters),
		byKey:      make(map[string]Counters),
		maxEntries: defaultMaxStatsEntries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = bump(s.total, ev.Allowed)
	s.bumpEntry(s.byRoute, route, ev.Allowed)
	if s.trackKeys {
		s.bumpEntry(s.byKey, ev.Key, ev.Allowed)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounters(s.byKey)
}

func (s *MemoryStatsStore) Snapshot(context.Context) (StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{Total: s.total, Routes: cloneCounters(s.byRoute)}
	if s.trackKeys {
		snap.Keys = cloneCounters(s.byKey)
	}
	return snap, nil
}

func (s *MemoryStatsStore) bumpEntry(m map[string]Counters, name string, allowed bool) {
	if _, ok := m[name]; !ok && len(m) >= s.maxEntries {
		name = OverflowEntry
	}
	m[name] = bump(m[name], allowed)
}

func bump(c Counters, allowed bool) Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

func cloneCounters(src map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
