package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	"taskhub/internal/members/models"
	"taskhub/internal/members/store"
	"taskhub/internal/partition"
	provmodels "taskhub/internal/provisioning/models"
	"taskhub/internal/provisioning/saga"
	"taskhub/internal/sentinel"
	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
)

// PartitionRunner runs scoped work; satisfied by *partition.Router.
type PartitionRunner interface {
	Run(ctx context.Context, scope partition.Scope, fn func(ctx context.Context, q partition.Querier) error) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry auditmodels.Entry)
}

// Accounts manages member logins in the tenant's realm; satisfied by
// *keycloak.Client.
type Accounts interface {
	EnsureUser(ctx context.Context, realm string, account provmodels.Account) (string, error)
	FindUserByEmail(ctx context.Context, realm, email string) (string, error)
	AssignRealmRoles(ctx context.Context, realm, userID string, roles []string) error
	RemoveRealmRoles(ctx context.Context, realm, userID string, roles []string) error
	DeleteUser(ctx context.Context, realm, userID string) error
}

// Service serves members of the caller's own partition. Lookups of ids that
// live in another tenant's partition are indistinguishable from ids that do
// not exist.
type Service struct {
	partitions PartitionRunner
	accounts   Accounts
	audit      AuditRecorder
	runner     *saga.Runner
	logger     *slog.Logger
}

// New builds the service. accounts may be nil for callers that only mirror
// or read members.
func New(partitions PartitionRunner, accounts Accounts, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		partitions: partitions,
		accounts:   accounts,
		audit:      audit,
		runner:     saga.NewRunner(saga.WithLogger(logger), saga.WithTracer(otel.Tracer("taskhub/members"))),
		logger:     logger,
	}
}

func (s *Service) ListMembers(ctx context.Context, ident *identity.Identity, limit, offset int) ([]*models.Member, int, error) {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, 0, err
	}
	var (
		members []*models.Member
		total   int
	)
	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		members, total, err = store.List(ctx, q, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}

	s.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(ident.TenantID()),
		UserID:       string(ident.UserID()),
		Action:       auditmodels.ActionDataRead,
		ResourceType: auditmodels.ResourceUser,
		Details:      map[string]any{"count": len(members), "offset": offset},
	})
	return members, total, nil
}

func (s *Service) GetMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID) (*models.Member, error) {
	scope, err := partition.FromIdentity(ident)
	if err != nil {
		return nil, err
	}
	var member *models.Member
	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		member, err = store.Get(ctx, q, memberID)
		return err
	})
	if err != nil {
		return nil, memberError(err, "failed to load member")
	}

	s.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(ident.TenantID()),
		UserID:       string(ident.UserID()),
		Action:       auditmodels.ActionDataRead,
		ResourceType: auditmodels.ResourceUser,
		ResourceID:   memberID.String(),
	})
	return member, nil
}

// CountByTenant reports how many members a tenant's partition holds. A
// tenant whose partition is not usable counts as zero.
func (s *Service) CountByTenant(ctx context.Context, tenant *tenantmodels.Tenant) (int, error) {
	scope, err := partition.ForTenant(tenant)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		n, err = store.Count(ctx, q)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "member count unavailable",
			"tenant_id", tenant.ID,
			"error", err,
		)
		return 0, nil
	}
	return n, nil
}

// MirrorMember writes the local copy of an identity provider account into a
// partition, refreshing the row when the email is already present.
func (s *Service) MirrorMember(ctx context.Context, scope partition.Scope, m *models.Member) (id.MemberID, error) {
	var memberID id.MemberID
	err := s.partitions.Run(ctx, scope, func(ctx context.Context, q partition.Querier) error {
		var err error
		memberID, err = store.Upsert(ctx, q, m)
		return err
	})
	if err != nil {
		return id.MemberID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mirror member")
	}
	return memberID, nil
}

// memberError maps store errors for a single member.
func memberError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
