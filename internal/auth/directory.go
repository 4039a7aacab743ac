package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appErrors "github.com/expense-tracker/backend/errors"
	"github.com/expense-tracker/backend/internal/cache"
	"github.com/expense-tracker/backend/logging"
)

const (
	emailCacheSize = 10
	idCacheSize    = 50
	idleExpiry     = 30 * time.Minute
)

// Directory is the cached credential layer over the IdentityStore.
// It keeps two independent caches, user-by-email and user-by-id, each
// with its own capacity and a shared idle-expiry window. The two are
// deliberately not kept in lock-step: Evict clears the email cache
// only. Lookup misses are never cached.
type Directory struct {
	store   IdentityStore
	byEmail *cache.LRU[User]
	byID    *cache.LRU[User]
}

func NewDirectory(store IdentityStore) *Directory {
	return &Directory{
		store:   store,
		byEmail: cache.NewLRU[User](emailCacheSize, idleExpiry),
		byID:    cache.NewLRU[User](idCacheSize, idleExpiry),
	}
}

// Peek returns the cached record for email without ever touching the
// IdentityStore. The second return reports whether the cache held it.
func (d *Directory) Peek(email string) (User, bool) {
	return d.byEmail.Get(email)
}

// LoadByEmail returns the user for email, from cache when possible,
// otherwise from the IdentityStore, caching the loaded record. Fails
// with ErrUserNotFound when no such email exists.
func (d *Directory) LoadByEmail(ctx context.Context, email string) (User, error) {
	if user, ok := d.byEmail.Get(email); ok {
		return user, nil
	}

	user, err := d.store.FindByEmail(ctx, email)
	if err != nil {
		return User{}, fmt.Errorf("failed to load user by email: %w", err)
	}
	if user == nil {
		return User{}, fmt.Errorf("%w: email %s", appErrors.ErrUserNotFound, email)
	}

	d.byEmail.Set(email, *user)
	return *user, nil
}

// LoadByID is the by-id twin of LoadByEmail, backed by the separately
// bounded id cache.
func (d *Directory) LoadByID(ctx context.Context, id int64) (User, error) {
	key := strconv.FormatInt(id, 10)
	if user, ok := d.byID.Get(key); ok {
		return user, nil
	}

	user, err := d.store.FindByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("failed to load user by id: %w", err)
	}
	if user == nil {
		return User{}, fmt.Errorf("%w: id %d", appErrors.ErrUserNotFound, id)
	}

	d.byID.Set(key, *user)
	return *user, nil
}

// Evict drops email from the by-email cache. The by-id cache keeps its
// entry until it expires on its own.
func (d *Directory) Evict(email string) {
	logging.Logger.Debugf("evicting user from credential cache: %s", email)
	d.byEmail.Delete(email)
}
