package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/taskgate/cache"
)

type mockCacheStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMockCacheStore() *mockCacheStore {
	return &mockCacheStore{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *mockCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return v, nil
}

func (m *mockCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockCacheStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return cache.ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

func TestCachedDirectory_FindByEmail(t *testing.T) {
	ctx := context.Background()
	users := newMockUserStore()
	users.users["a@x.com"] = User{
		ID:           "u-1",
		Email:        "a@x.com",
		Roles:        NewRoleSet("USER"),
		FirstName:    "Ada",
		PasswordHash: PasswordHash{Algorithm: AlgorithmBcrypt, Value: []byte("hash")},
	}
	store := newMockCacheStore()
	dir := NewCachedDirectory(users, store, time.Minute)

	first, err := dir.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if len(first.PasswordHash.Value) != 0 {
		t.Error("cached directory must not return password hashes")
	}
	if store.ttls["directory:a@x.com"] != time.Minute {
		t.Errorf("ttl = %v, want 1m", store.ttls["directory:a@x.com"])
	}

	second, err := dir.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if users.lookups != 1 {
		t.Errorf("lookups = %d, want 1", users.lookups)
	}
	if second.ID != "u-1" || second.FirstName != "Ada" || !second.Roles.Contains("USER") {
		t.Errorf("FindByEmail() = %+v", second)
	}

	if err := dir.Invalidate(ctx, "a@x.com"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if err := dir.Invalidate(ctx, "a@x.com"); err != nil {
		t.Fatalf("Invalidate() on missing entry error = %v", err)
	}
	if _, err := dir.FindByEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if users.lookups != 2 {
		t.Errorf("lookups = %d, want 2 after invalidation", users.lookups)
	}
}

func TestCachedDirectory_Fallbacks(t *testing.T) {
	ctx := context.Background()
	users := newMockUserStore()
	users.users["a@x.com"] = User{Email: "a@x.com"}
	store := newMockCacheStore()
	dir := NewCachedDirectory(users, store, 0)

	t.Run("not found is not cached", func(t *testing.T) {
		if _, err := dir.FindByEmail(ctx, "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("FindByEmail() error = %v, want %v", err, ErrUserNotFound)
		}
		if _, ok := store.entries["directory:ghost@x.com"]; ok {
			t.Error("absent users must not be cached")
		}
	})

	t.Run("corrupt entry", func(t *testing.T) {
		store.entries["directory:a@x.com"] = []byte("{not json")
		if _, err := dir.FindByEmail(ctx, "a@x.com"); err != nil {
			t.Fatalf("FindByEmail() error = %v", err)
		}
	})

	t.Run("cache unavailable", func(t *testing.T) {
		store.getErr = errors.New("connection refused")
		if _, err := dir.FindByEmail(ctx, "a@x.com"); err != nil {
			t.Fatalf("FindByEmail() error = %v", err)
		}
	})
}
