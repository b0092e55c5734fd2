package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/sentinel"
	tenantmetrics "taskhub/internal/tenant/metrics"
	"taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/middleware/admin"
	"taskhub/pkg/requestcontext"
)

type TenantStore interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	FindByRealm(ctx context.Context, realm string) (*models.Tenant, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Tenant, int, error)
	Update(ctx context.Context, t *models.Tenant) error
	UpdateStatus(ctx context.Context, tenantID id.TenantID, status models.TenantStatus, now time.Time) error
}

// UserCounter reports member counts for the operator read model.
type UserCounter interface {
	CountByTenant(ctx context.Context, tenant *models.Tenant) (int, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry auditmodels.Entry)
}

// Service is the tenant directory: reads for the authenticator and the
// operator API, plus the lifecycle transitions that do not provision.
type Service struct {
	tenants        TenantStore
	users          UserCounter
	audit          AuditRecorder
	logger         *slog.Logger
	metrics        *tenantmetrics.Metrics
	publicSettings []string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublicSettings sets the settings keys the public lookup may return.
func WithPublicSettings(keys []string) Option {
	return func(s *Service) {
		s.publicSettings = keys
	}
}

func New(tenants TenantStore, users UserCounter, audit AuditRecorder, opts ...Option) *Service {
	s := &Service{tenants: tenants, users: users, audit: audit, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByRealm is the authenticator's lookup. Misses keep the sentinel so the
// caller can tell "unknown realm" from a failing registry.
func (s *Service) FindByRealm(ctx context.Context, realm string) (*models.Tenant, error) {
	return s.tenants.FindByRealm(ctx, realm)
}

func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.TenantSummary, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return s.summarize(ctx, t), nil
}

func (s *Service) ListTenants(ctx context.Context, filter models.ListFilter) ([]*models.TenantSummary, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "unknown status")
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
	}
	if filter.Offset < 0 {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
	}

	tenants, total, err := s.tenants.List(ctx, filter)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	out := make([]*models.TenantSummary, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, s.summarize(ctx, t))
	}
	return out, total, nil
}

// LookupPublic resolves a slug for unauthenticated login pages. Tenants
// still being provisioned are not visible.
func (s *Service) LookupPublic(ctx context.Context, slug string) (*models.PublicTenantResponse, error) {
	if models.ValidateSlug(slug) != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	t, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to look up tenant")
	}
	if t.Status == models.TenantStatusPending {
		return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	resp := models.ToPublicResponse(t, s.publicSettings)
	return &resp, nil
}

// UpdateTenant changes the display name and replaces settings.
func (s *Service) UpdateTenant(ctx context.Context, tenantID id.TenantID, req *models.UpdateTenantRequest) (*models.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Settings != nil {
		t.Settings = req.Settings
	}
	t.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, wrapTenantErr(err, "failed to update tenant")
	}

	fields := []string{}
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Settings != nil {
		fields = append(fields, "settings")
	}
	s.recordLifecycle(ctx, auditmodels.ActionTenantUpdated, t.ID, map[string]any{"fields": fields})
	return t, nil
}

// SuspendTenant blocks all member authentication for the tenant. Suspending
// a suspended tenant succeeds without a second audit entry.
func (s *Service) SuspendTenant(ctx context.Context, tenantID id.TenantID, reason string) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, auditmodels.ActionTenantSuspended, map[string]any{"reason": reason},
		(*models.Tenant).Suspend)
}

// ReactivateTenant restores authentication for a suspended tenant.
func (s *Service) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, auditmodels.ActionTenantReactivated, nil,
		(*models.Tenant).Reactivate)
}

func (s *Service) transition(
	ctx context.Context,
	tenantID id.TenantID,
	action auditmodels.Action,
	details map[string]any,
	apply func(*models.Tenant, time.Time) (bool, error),
) (*models.Tenant, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	now := requestcontext.Now(ctx).UTC()
	changed, err := apply(t, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return t, nil
	}
	if err := s.tenants.UpdateStatus(ctx, t.ID, t.Status, now); err != nil {
		return nil, wrapTenantErr(err, "failed to update tenant status")
	}

	s.metrics.IncrementStatusChange(string(t.Status))
	s.logger.InfoContext(ctx, "tenant status changed",
		"tenant_id", t.ID,
		"status", t.Status,
		"actor", admin.ActorID(ctx),
	)
	s.recordLifecycle(ctx, action, t.ID, details)
	return t, nil
}

func (s *Service) summarize(ctx context.Context, t *models.Tenant) *models.TenantSummary {
	summary := &models.TenantSummary{Tenant: *t}
	if s.users != nil {
		// Counting failures degrade to zero inside the counter.
		summary.UserCount, _ = s.users.CountByTenant(ctx, t)
	}
	return summary
}

func (s *Service) recordLifecycle(ctx context.Context, action auditmodels.Action, tenantID id.TenantID, details map[string]any) {
	s.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(tenantID),
		UserID:       admin.ActorID(ctx),
		Action:       action,
		ResourceType: auditmodels.ResourceTenant,
		ResourceID:   tenantID.String(),
		Details:      details,
	})
}

func wrapTenantErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.New(dErrors.CodeConflict, "tenant already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
