package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskhub/internal/audit/models"
	id "taskhub/pkg/domain"
)

const entryColumns = `id, tenant_id, COALESCE(user_id, ''), action, COALESCE(resource_type, ''),
	COALESCE(resource_id, ''), details, COALESCE(ip_address, ''), COALESCE(user_agent, ''),
	COALESCE(request_id, ''), created_at`

// PostgresStore appends to and reads from platform.audit_log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, e models.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	var tenantID *uuid.UUID
	if e.TenantID != nil {
		u := uuid.UUID(*e.TenantID)
		tenantID = &u
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform.audit_log
			(id, tenant_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, request_id, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)`,
		uuid.UUID(e.ID), tenantID, e.UserID, string(e.Action), e.ResourceType, e.ResourceID,
		details, e.IPAddress, e.UserAgent, e.RequestID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query always filters on tenant_id; the other predicates are appended only
// when set.
func (s *PostgresStore) Query(ctx context.Context, tenantID id.TenantID, f models.Filter) ([]models.Entry, int, error) {
	where, args := buildWhere(tenantID, f.UserID, f.Action, f.ResourceType, f.From, f.To)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM platform.audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM platform.audit_log WHERE `+where+
		` ORDER BY created_at DESC, id LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.Entry, 0, f.Limit)
	for rows.Next() {
		var (
			e       models.Entry
			entryID uuid.UUID
			tenant  *uuid.UUID
			action  string
			details []byte
		)
		if err := rows.Scan(&entryID, &tenant, &e.UserID, &action, &e.ResourceType, &e.ResourceID,
			&details, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(entryID)
		if tenant != nil {
			e.TenantID = models.TenantRef(id.TenantID(*tenant))
		}
		e.Action = models.Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, total, nil
}

func (s *PostgresStore) Summary(ctx context.Context, tenantID id.TenantID, from, to time.Time) (*models.Summary, error) {
	where, args := buildWhere(tenantID, "", "", "", from, to)
	rows, err := s.pool.Query(ctx, `
		SELECT action, COALESCE(user_id, ''), count(*)
		FROM platform.audit_log WHERE `+where+`
		GROUP BY action, user_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize audit entries: %w", err)
	}
	defer rows.Close()

	sum := models.NewSummary(from, to)
	for rows.Next() {
		var (
			action string
			userID string
			n      int
		)
		if err := rows.Scan(&action, &userID, &n); err != nil {
			return nil, fmt.Errorf("scan audit summary: %w", err)
		}
		sum.Add(models.Action(action), userID, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize audit entries: %w", err)
	}
	return sum, nil
}

func buildWhere(tenantID id.TenantID, userID string, action models.Action, resourceType string, from, to time.Time) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if userID != "" {
		add("user_id = $%d", userID)
	}
	if action != "" {
		add("action = $%d", string(action))
	}
	if resourceType != "" {
		add("resource_type = $%d", resourceType)
	}
	if !from.IsZero() {
		add("created_at >= $%d", from)
	}
	if !to.IsZero() {
		add("created_at < $%d", to)
	}
	return strings.Join(clauses, " AND "), args
}
