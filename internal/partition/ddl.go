package partition

import (
	"context"
	"fmt"
)

// partitionTables is applied with search_path pinned to the new schema, so
// every name below resolves inside it.
var partitionTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		idp_user_id VARCHAR(255) UNIQUE,
		email       VARCHAR(255) NOT NULL UNIQUE,
		first_name  VARCHAR(255),
		last_name   VARCHAR(255),
		role        VARCHAR(50)  NOT NULL DEFAULT 'member',
		status      VARCHAR(50)  NOT NULL DEFAULT 'active',
		created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name        VARCHAR(255) NOT NULL,
		description TEXT,
		status      VARCHAR(50) NOT NULL DEFAULT 'active',
		owner_id    UUID REFERENCES users(id),
		settings    JSONB       NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		project_id  UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title       VARCHAR(500) NOT NULL,
		description TEXT,
		status      VARCHAR(50) NOT NULL DEFAULT 'todo',
		priority    VARCHAR(50) NOT NULL DEFAULT 'medium',
		assignee_id UUID REFERENCES users(id),
		due_date    TIMESTAMPTZ,
		created_by  UUID REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		task_id    UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks (project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_task ON comments (task_id)`,
}

// CreatePartition creates the schema and its tables. Safe to repeat.
func (r *Router) CreatePartition(ctx context.Context, scope Scope) error {
	if _, err := r.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+scope.quoted()); err != nil {
		return fmt.Errorf("create schema %s: %w", scope.schema, err)
	}
	return r.Run(ctx, scope, func(ctx context.Context, q Querier) error {
		for _, stmt := range partitionTables {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create partition tables: %w", err)
			}
		}
		return nil
	})
}

// DropPartition removes the schema and everything in it. A missing schema
// is not an error.
func (r *Router) DropPartition(ctx context.Context, scope Scope) error {
	if _, err := r.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+scope.quoted()+" CASCADE"); err != nil {
		return fmt.Errorf("drop schema %s: %w", scope.schema, err)
	}
	return nil
}

// PartitionExists reports whether the schema is present.
func (r *Router) PartitionExists(ctx context.Context, scope Scope) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, scope.schema,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %s: %w", scope.schema, err)
	}
	return exists, nil
}
