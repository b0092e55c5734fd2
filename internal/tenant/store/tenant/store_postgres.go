package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskhub/internal/sentinel"
	"taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
)

const uniqueViolation = "23505"

const tenantColumns = `id, name, slug, realm_name, schema_name, status, settings, created_at, updated_at`

// PostgresStore persists the registry in platform.tenants.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal tenant settings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform.tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(t.ID), t.Name, t.Slug, t.RealmName, t.SchemaName,
		string(t.Status), settings, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant slug %q: %w", t.Slug, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.findOne(ctx, "id = $1", uuid.UUID(tenantID))
}

func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.findOne(ctx, "slug = $1", slug)
}

func (s *PostgresStore) FindByRealm(ctx context.Context, realm string) (*models.Tenant, error) {
	return s.findOne(ctx, "realm_name = $1", realm)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM platform.tenants WHERE `+where, arg)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenant %v: %w", arg, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter) ([]*models.Tenant, int, error) {
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM platform.tenants WHERE ($1::text IS NULL OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+tenantColumns+` FROM platform.tenants
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, slug
		LIMIT $2 OFFSET $3`,
		status, limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*models.Tenant, 0, limit)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, total, nil
}

// Update writes the mutable fields: name and settings.
func (s *PostgresStore) Update(ctx context.Context, t *models.Tenant) error {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("marshal tenant settings: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform.tenants SET name = $2, settings = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(t.ID), t.Name, settings, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE platform.tenants SET status = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(tenantID), string(status), now,
	)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID id.TenantID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM platform.tenants WHERE id = $1`, uuid.UUID(tenantID))
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	return nil
}

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var (
		t        models.Tenant
		tenantID uuid.UUID
		status   string
		settings []byte
	)
	if err := row.Scan(&tenantID, &t.Name, &t.Slug, &t.RealmName, &t.SchemaName,
		&status, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ID = id.TenantID(tenantID)
	t.Status = models.TenantStatus(status)
	t.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
