//go:build integration

// Package containers holds testcontainers fixtures for integration tests.
// Each container starts on first use and lives for the rest of the test binary.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out the shared containers.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
}

var manager = sync.OnceValue(func() *Manager { return &Manager{} })

func GetManager() *Manager { return manager() }

// GetPostgres returns a migrated Postgres container.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return lazy(&m.mu, &m.postgres, func() *PostgresContainer { return NewPostgresContainer(t) })
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return lazy(&m.mu, &m.redis, func() *RedisContainer { return NewRedisContainer(t) })
}

func lazy[T any](mu *sync.Mutex, slot **T, start func() *T) *T {
	mu.Lock()
	defer mu.Unlock()
	if *slot == nil {
		*slot = start()
	}
	return *slot
}
