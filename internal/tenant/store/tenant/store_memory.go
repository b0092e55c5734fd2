package tenant

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"taskhub/internal/sentinel"
	"taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
)

// InMemoryStore keeps the registry in process memory. Slug, realm and
// schema uniqueness are enforced like the database constraints.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tenants: make(map[id.TenantID]*models.Tenant)}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrAlreadyExists)
	}
	for _, existing := range s.tenants {
		if existing.Slug == t.Slug || existing.RealmName == t.RealmName || existing.SchemaName == t.SchemaName {
			return fmt.Errorf("tenant slug %q: %w", t.Slug, sentinel.ErrAlreadyExists)
		}
	}
	s.tenants[t.ID] = clone(t)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[tenantID]; ok {
		return clone(t), nil
	}
	return nil, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	return s.findBy(func(t *models.Tenant) bool { return t.Slug == slug }, "slug "+slug)
}

func (s *InMemoryStore) FindByRealm(_ context.Context, realm string) (*models.Tenant, error) {
	return s.findBy(func(t *models.Tenant) bool { return t.RealmName == realm }, "realm "+realm)
}

func (s *InMemoryStore) findBy(match func(*models.Tenant) bool, what string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if match(t) {
			return clone(t), nil
		}
	}
	return nil, fmt.Errorf("tenant %s: %w", what, sentinel.ErrNotFound)
}

// List orders by creation time, newest first, like the postgres store.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Tenant, int, error) {
	s.mu.RLock()
	matched := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		matched = append(matched, clone(t))
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Tenant) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Slug, b.Slug)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[t.ID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrNotFound)
	}
	updated := clone(existing)
	updated.Name = t.Name
	updated.Settings = maps.Clone(t.Settings)
	updated.UpdatedAt = t.UpdatedAt
	s.tenants[t.ID] = updated
	return nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, tenantID id.TenantID, status models.TenantStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	updated := clone(existing)
	updated.Status = status
	updated.UpdatedAt = now
	s.tenants[tenantID] = updated
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, tenantID id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	delete(s.tenants, tenantID)
	return nil
}

func clone(t *models.Tenant) *models.Tenant {
	c := *t
	c.Settings = maps.Clone(t.Settings)
	return &c
}
