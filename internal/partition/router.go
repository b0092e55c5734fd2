// Package partition scopes database work to one tenant's schema. Every query
// against tenant data runs inside Run, which pins search_path for the
// lifetime of a single transaction.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskhub/internal/identity"
	"taskhub/internal/platform/database"
	tenantmodels "taskhub/internal/tenant/models"
	dErrors "taskhub/pkg/domain-errors"
)

var schemaPattern = regexp.MustCompile(`^tenant_[a-z0-9_]{1,56}$`)

// Scope names the partition a unit of work may touch. The zero value is
// invalid; scopes come only from an authenticated identity or from the
// provisioning flow, never from request input.
type Scope struct {
	schema string
}

// FromIdentity scopes work to the caller's tenant.
func FromIdentity(ident *identity.Identity) (Scope, error) {
	if ident == nil {
		return Scope{}, dErrors.New(dErrors.CodeUnauthenticated, "no identity")
	}
	return newScope(ident.Partition())
}

// ForTenant scopes work to a registry record, for operator paths that act
// on a tenant without a member token.
func ForTenant(t *tenantmodels.Tenant) (Scope, error) {
	if t == nil {
		return Scope{}, dErrors.New(dErrors.CodeInvariantViolation, "no tenant")
	}
	return newScope(t.SchemaName)
}

// ForProvisioning scopes work to a partition that may not be bound to any
// active tenant yet.
func ForProvisioning(schema string) (Scope, error) {
	return newScope(schema)
}

func newScope(schema string) (Scope, error) {
	if !schemaPattern.MatchString(schema) {
		return Scope{}, dErrors.New(dErrors.CodeInvariantViolation, "invalid partition name")
	}
	return Scope{schema: schema}, nil
}

func (s Scope) Schema() string { return s.schema }

func (s Scope) quoted() string { return pgx.Identifier{s.schema}.Sanitize() }

// Querier is the statement surface handed to scoped work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Router runs scoped transactions on a shared pool.
type Router struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRouter(pool *pgxpool.Pool, logger *slog.Logger) *Router {
	return &Router{pool: pool, logger: logger}
}

// Run executes fn in a transaction whose search_path is the scope's schema
// followed by public. Any error from fn rolls the transaction back.
func (r *Router) Run(ctx context.Context, scope Scope, fn func(ctx context.Context, q Querier) error) error {
	if scope.schema == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "unscoped partition access")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin partition tx: %w", err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+scope.quoted()+", public"); err != nil {
		return fmt.Errorf("pin search_path: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit partition tx: %w", err)
	}
	return nil
}

// RunWithRetry repeats Run while the failure is transient: serialization
// failures, deadlocks and errors pgconn reports as safe to retry.
func (r *Router) RunWithRetry(ctx context.Context, scope Scope, attempts int, fn func(ctx context.Context, q Querier) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = r.Run(ctx, scope, fn)
		if err == nil || !isTransient(err) || attempt == attempts {
			return err
		}
		r.logger.WarnContext(ctx, "retrying partition transaction",
			"partition", scope.schema,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return pgconn.SafeToRetry(err)
}

// ConfigurePool installs the release hook that returns connections to the
// pool with a neutral search_path. A connection that cannot be reset, or
// that still has a transaction open, is destroyed instead of reused.
func ConfigurePool(logger *slog.Logger) database.PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.AfterRelease = func(conn *pgx.Conn) bool {
			if conn.PgConn().TxStatus() != 'I' {
				logger.Warn("discarding connection released inside a transaction")
				return false
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, "RESET search_path"); err != nil {
				logger.Warn("discarding connection after failed search_path reset", "error", err)
				return false
			}
			return true
		}
	}
}
