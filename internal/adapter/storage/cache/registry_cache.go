package cache

import (
	"context"

	"subscription-ledger/internal/core/domain"
	"subscription-ledger/internal/core/ports"

	"github.com/coocood/freecache"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegistryCache memoizes positive provenance lookups. Registry entries are
// never removed, so a cached "true" never goes stale; negative answers are
// not cached because the instance may be minted later.
type RegistryCache struct {
	inner ports.RegistryRepository
	cache *freecache.Cache
}

// NewRegistryCache wraps inner with a freecache of sizeMB megabytes.
// A non-positive size returns inner unchanged.
func NewRegistryCache(inner ports.RegistryRepository, sizeMB int) ports.RegistryRepository {
	if sizeMB <= 0 {
		return inner
	}
	return &RegistryCache{
		inner: inner,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
	}
}

// Append does not populate the cache: the surrounding transaction may still roll back.
func (c *RegistryCache) Append(ctx context.Context, tx pgx.Tx, entry *domain.RegistryEntry) error {
	return c.inner.Append(ctx, tx, entry)
}

func (c *RegistryCache) Exists(ctx context.Context, factoryID, instanceID uuid.UUID) (bool, error) {
	key := cacheKey(factoryID, instanceID)
	if _, err := c.cache.Get(key); err == nil {
		return true, nil
	}

	ok, err := c.inner.Exists(ctx, factoryID, instanceID)
	if err != nil || !ok {
		return ok, err
	}
	_ = c.cache.Set(key, []byte{1}, 0)
	return true, nil
}

func (c *RegistryCache) ListByCreator(ctx context.Context, factoryID, creator uuid.UUID) ([]uuid.UUID, error) {
	return c.inner.ListByCreator(ctx, factoryID, creator)
}

// HitCount reports cache hits since creation.
func (c *RegistryCache) HitCount() int64 {
	return c.cache.HitCount()
}

func cacheKey(factoryID, instanceID uuid.UUID) []byte {
	key := make([]byte, 0, 32)
	key = append(key, factoryID[:]...)
	return append(key, instanceID[:]...)
}
