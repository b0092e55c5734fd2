// Package cache puts a short-lived in-process cache in front of the tenant
// registry's realm lookup, the one query every authenticated request makes.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
)

// Store is the registry being decorated.
type Store interface {
	Create(ctx context.Context, t *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	FindByRealm(ctx context.Context, realm string) (*models.Tenant, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Tenant, int, error)
	Update(ctx context.Context, t *models.Tenant) error
	UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, now time.Time) error
	Delete(ctx context.Context, tenantID id.TenantID) error
}

// RealmCache serves FindByRealm from memory for at most ttl. Concurrent
// misses for one realm share a single registry query. Status changes and
// deletes made through the cache evict the realm immediately; misses are
// never cached so a freshly provisioned tenant is visible at once.
type RealmCache struct {
	Store
	cache *ristretto.Cache[string, models.Tenant]
	group singleflight.Group
	ttl   time.Duration
	// generation invalidates loads that started before an eviction.
	generation atomic.Uint64
}

func New(inner Store, ttl time.Duration, maxEntries int64) (*RealmCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, models.Tenant]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RealmCache{Store: inner, cache: c, ttl: ttl}, nil
}

func (c *RealmCache) FindByRealm(ctx context.Context, realm string) (*models.Tenant, error) {
	if t, ok := c.cache.Get(realm); ok {
		return copyOf(t), nil
	}

	v, err, _ := c.group.Do(realm, func() (any, error) {
		gen := c.generation.Load()
		t, err := c.Store.FindByRealm(ctx, realm)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.cache.SetWithTTL(realm, *t, 1, c.ttl)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return copyOf(*v.(*models.Tenant)), nil
}

func (c *RealmCache) UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, now time.Time) error {
	c.evictByID(ctx, tenantID)
	err := c.Store.UpdateStatus(ctx, tenantID, status, now)
	c.evictByID(ctx, tenantID)
	return err
}

func (c *RealmCache) Update(ctx context.Context, t *models.Tenant) error {
	err := c.Store.Update(ctx, t)
	c.Evict(t.RealmName)
	return err
}

func (c *RealmCache) Delete(ctx context.Context, tenantID id.TenantID) error {
	existing, findErr := c.Store.FindByID(ctx, tenantID)
	err := c.Store.Delete(ctx, tenantID)
	if findErr == nil {
		c.Evict(existing.RealmName)
	}
	return err
}

// Evict drops the cached entry for realm.
func (c *RealmCache) Evict(realm string) {
	c.generation.Add(1)
	c.cache.Del(realm)
}

// Wait blocks until pending cache writes are applied.
func (c *RealmCache) Wait() { c.cache.Wait() }

func (c *RealmCache) Close() { c.cache.Close() }

func (c *RealmCache) evictByID(ctx context.Context, tenantID id.TenantID) {
	if t, err := c.Store.FindByID(ctx, tenantID); err == nil {
		c.Evict(t.RealmName)
	}
}

func copyOf(t models.Tenant) *models.Tenant {
	out := t
	if t.Settings != nil {
		out.Settings = make(map[string]any, len(t.Settings))
		for k, v := range t.Settings {
			out.Settings[k] = v
		}
	}
	return &out
}
