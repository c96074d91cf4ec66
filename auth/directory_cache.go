package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/taskgate/cache"
)

const defaultDirectoryCachePrefix = "directory"

// CachedDirectory memoizes directory lookups in a cache.Store. Password
// hashes are never written to the cache.
type CachedDirectory struct {
	next   Directory
	store  cache.Store
	ttl    time.Duration
	prefix string
}

func NewCachedDirectory(next Directory, store cache.Store, ttl time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{next: next, store: store, ttl: ttl, prefix: defaultDirectoryCachePrefix}
}

type cachedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *CachedDirectory) FindByEmail(ctx context.Context, email string) (User, error) {
	logger := zerolog.Ctx(ctx)
	key := d.cacheKey(email)

	payload, err := d.store.Get(ctx, key)
	switch {
	case err == nil:
		var cu cachedUser
		if err := json.Unmarshal(payload, &cu); err == nil {
			return cu.user(), nil
		}
		logger.Warn().Str("key", key).Msg("discarding undecodable directory cache entry")
	case !errors.Is(err, cache.ErrNotFound):
		logger.Warn().Err(err).Msg("directory cache read failed")
	}

	user, err := d.next.FindByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}

	if payload, err := json.Marshal(newCachedUser(user)); err == nil {
		if err := d.store.Set(ctx, key, payload, d.ttl); err != nil {
			logger.Warn().Err(err).Msg("directory cache write failed")
		}
	}
	user.PasswordHash = PasswordHash{}
	return user, nil
}

// Invalidate drops the cached entry for email.
func (d *CachedDirectory) Invalidate(ctx context.Context, email string) error {
	err := d.store.Delete(ctx, d.cacheKey(email))
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}
	return nil
}

func (d *CachedDirectory) cacheKey(email string) string {
	return d.prefix + ":" + email
}

func newCachedUser(u User) cachedUser {
	return cachedUser{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     u.Roles,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Country:   u.Country,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (c cachedUser) user() User {
	return User{
		ID:        c.ID,
		Email:     c.Email,
		Roles:     NewRoleSet(c.Roles...),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Country:   c.Country,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
