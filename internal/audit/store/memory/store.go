package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"taskhub/internal/audit/models"
	id "taskhub/pkg/domain"
)

// InMemoryStore keeps entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry models.Entry) error {
	entry.Details = maps.Clone(entry.Details)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Query returns the tenant's matching entries newest first.
func (s *InMemoryStore) Query(_ context.Context, tenantID id.TenantID, filter models.Filter) ([]models.Entry, int, error) {
	matched := s.tenantEntries(tenantID, func(e *models.Entry) bool { return filter.Matches(e) })
	slices.SortStableFunc(matched, func(a, b models.Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) Summary(_ context.Context, tenantID id.TenantID, from, to time.Time) (*models.Summary, error) {
	window := models.Filter{From: from, To: to}
	sum := models.NewSummary(from, to)
	for _, e := range s.tenantEntries(tenantID, func(e *models.Entry) bool { return window.Matches(e) }) {
		sum.Add(e.Action, e.UserID, 1)
	}
	return sum, nil
}

// All returns every entry regardless of tenant. Tests only.
func (s *InMemoryStore) All() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

func (s *InMemoryStore) tenantEntries(tenantID id.TenantID, keep func(*models.Entry) bool) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Entry
	for i := range s.entries {
		e := &s.entries[i]
		if e.TenantID == nil || *e.TenantID != tenantID {
			continue
		}
		if keep(e) {
			out = append(out, *e)
		}
	}
	return out
}
