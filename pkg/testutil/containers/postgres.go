//go:build integration

package containers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"taskhub/internal/platform/config"
	"taskhub/internal/platform/database"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// platform migrations applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

// NewPostgresContainer starts a new Postgres container with migrations applied.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("taskhub_test"),
		postgres.WithUsername("taskhub"),
		postgres.WithPassword("taskhub_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	if err := database.RunMigrations(ctx, dsn); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, config.Database{DSN: dsn, MaxConns: 8})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	// The container is shared across suites; Ryuk removes it when the test
	// process exits.
	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		Pool:      pool,
	}
}

// NewPool opens an additional pool against the container, for tests that
// need pool hooks installed.
func (p *PostgresContainer) NewPool(t *testing.T, maxConns int32, opts ...database.PoolOption) *pgxpool.Pool {
	t.Helper()
	pool, err := database.NewPool(context.Background(), config.Database{DSN: p.DSN, MaxConns: maxConns}, opts...)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// TruncateTables clears all data from the specified tables.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		ident := pgx.Identifier(strings.Split(table, "."))
		if _, err := p.Pool.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// TruncatePlatform clears the registry and audit log.
func (p *PostgresContainer) TruncatePlatform(ctx context.Context) error {
	return p.TruncateTables(ctx, "platform.tenants", "platform.audit_log")
}

// DropTenantSchemas removes every tenant partition left by earlier tests.
func (p *PostgresContainer) DropTenantSchemas(ctx context.Context) error {
	rows, err := p.Pool.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE 'tenant\_%'`)
	if err != nil {
		return fmt.Errorf("list tenant schemas: %w", err)
	}
	schemas, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan tenant schemas: %w", err)
	}
	for _, schema := range schemas {
		if _, err := p.Pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("drop schema %s: %w", schema, err)
		}
	}
	return nil
}

// SchemaExists reports whether a schema with the given name exists.
func (p *PostgresContainer) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := p.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, schema,
	).Scan(&exists)
	return exists, err
}
