// Package store reads and writes the users table of a tenant partition. Every
// function takes the partition.Querier of a scoped transaction; none of them
// names a schema.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"taskhub/internal/members/models"
	"taskhub/internal/partition"
	"taskhub/internal/sentinel"
	id "taskhub/pkg/domain"
)

const memberColumns = `id, COALESCE(idp_user_id, ''), email, COALESCE(first_name, ''), COALESCE(last_name, ''), role, status, created_at, updated_at`

// Upsert inserts the member or refreshes the existing row with the same email.
func Upsert(ctx context.Context, q partition.Querier, m *models.Member) (id.MemberID, error) {
	var memberID uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO users (idp_user_id, email, first_name, last_name, role, status)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			idp_user_id = EXCLUDED.idp_user_id,
			first_name  = EXCLUDED.first_name,
			last_name   = EXCLUDED.last_name,
			role        = EXCLUDED.role,
			updated_at  = now()
		RETURNING id`,
		m.IdPUserID, m.Email, m.FirstName, m.LastName, m.Role, m.Status,
	).Scan(&memberID)
	if err != nil {
		return id.MemberID{}, fmt.Errorf("upsert member: %w", err)
	}
	return id.MemberID(memberID), nil
}

// Insert adds a new member. A row with the same email or identity provider
// id already present is reported as sentinel.ErrAlreadyExists.
func Insert(ctx context.Context, q partition.Querier, m *models.Member) (id.MemberID, error) {
	var memberID uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO users (idp_user_id, email, first_name, last_name, role, status)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		m.IdPUserID, m.Email, m.FirstName, m.LastName, m.Role, m.Status,
	).Scan(&memberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return id.MemberID{}, fmt.Errorf("member %s: %w", m.Email, sentinel.ErrAlreadyExists)
		}
		return id.MemberID{}, fmt.Errorf("insert member: %w", err)
	}
	return id.MemberID(memberID), nil
}

func ExistsByEmail(ctx context.Context, q partition.Querier, email string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup member email: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil fields of upd.
func Update(ctx context.Context, q partition.Querier, memberID id.MemberID, upd models.MemberUpdate) error {
	tag, err := q.Exec(ctx, `
		UPDATE users SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			status     = COALESCE($4, status),
			updated_at = now()
		WHERE id = $1`,
		uuid.UUID(memberID), upd.FirstName, upd.LastName, upd.Status,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	return nil
}

func SetRole(ctx context.Context, q partition.Querier, memberID id.MemberID, role string) error {
	tag, err := q.Exec(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, uuid.UUID(memberID), role)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	return nil
}

func Delete(ctx context.Context, q partition.Querier, memberID id.MemberID) error {
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, uuid.UUID(memberID))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
	}
	return nil
}

func Get(ctx context.Context, q partition.Querier, memberID id.MemberID) (*models.Member, error) {
	row := q.QueryRow(ctx, `SELECT `+memberColumns+` FROM users WHERE id = $1`, uuid.UUID(memberID))
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("member %s: %w", memberID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// List returns one page ordered by creation, plus the partition's total.
func List(ctx context.Context, q partition.Querier, limit, offset int) ([]*models.Member, int, error) {
	total, err := Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+memberColumns+` FROM users ORDER BY created_at, email LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.Member, 0, limit)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	return members, total, nil
}

func Count(ctx context.Context, q partition.Querier) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

func scanMember(row pgx.Row) (*models.Member, error) {
	var (
		m        models.Member
		memberID uuid.UUID
	)
	if err := row.Scan(&memberID, &m.IdPUserID, &m.Email, &m.FirstName, &m.LastName,
		&m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	return &m, nil
}
