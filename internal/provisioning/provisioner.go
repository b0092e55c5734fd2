// Package provisioning creates and deletes tenants: the registry row, the
// data partition and the identity realm, kept consistent by a compensating
// saga.
package provisioning

//go:generate mockgen -source=provisioner.go -destination=mocks/identity_admin_mock.go -package=mocks IdentityAdmin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	membermodels "taskhub/internal/members/models"
	"taskhub/internal/partition"
	"taskhub/internal/provisioning/models"
	"taskhub/internal/provisioning/saga"
	"taskhub/internal/sentinel"
	tenantmetrics "taskhub/internal/tenant/metrics"
	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/middleware/admin"
	"taskhub/pkg/requestcontext"
)

// IdentityAdmin is the slice of the identity provider's admin API that
// provisioning needs. Every Ensure method succeeds when the object exists.
type IdentityAdmin interface {
	EnsureRealm(ctx context.Context, realm, displayName string) error
	DeleteRealm(ctx context.Context, realm string) error
	EnsureRealmRoles(ctx context.Context, realm string, roles []string) error
	EnsureAppClient(ctx context.Context, realm string) (string, error)
	EnsureUser(ctx context.Context, realm string, user models.Account) (string, error)
	AssignRealmRoles(ctx context.Context, realm, userID string, roles []string) error
}

type TenantStore interface {
	Create(ctx context.Context, t *tenantmodels.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*tenantmodels.Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*tenantmodels.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID id.TenantID, status tenantmodels.TenantStatus, now time.Time) error
	Delete(ctx context.Context, tenantID id.TenantID) error
}

// Partitions is satisfied by *partition.Router.
type Partitions interface {
	CreatePartition(ctx context.Context, scope partition.Scope) error
	DropPartition(ctx context.Context, scope partition.Scope) error
}

type MemberMirror interface {
	MirrorMember(ctx context.Context, scope partition.Scope, m *membermodels.Member) (id.MemberID, error)
}

type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyForgetter drops cached signing keys for a realm that no longer exists.
type KeyForgetter interface {
	Forget(realm string)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry auditmodels.Entry)
}

// tenantRoles are created in every realm.
var tenantRoles = []string{identity.RoleAdmin, identity.RoleManager, identity.RoleMember}

// ProvisioningError is returned when a saga step fails. Err carries the
// domain code the caller sees; Residue lists compensations that failed and
// left resources behind.
type ProvisioningError struct {
	Step    string
	Err     error
	Residue []saga.Residue
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
	if len(e.Residue) > 0 {
		parts := make([]string, 0, len(e.Residue))
		for _, r := range e.Residue {
			parts = append(parts, r.String())
		}
		msg += "; cleanup incomplete: " + strings.Join(parts, ", ")
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) PartiallyCleanedUp() bool { return len(e.Residue) > 0 }

type Provisioner struct {
	tenants    TenantStore
	partitions Partitions
	idp        IdentityAdmin
	members    MemberMirror
	locker     Locker
	keys       KeyForgetter
	audit      AuditRecorder
	runner     *saga.Runner
	logger     *slog.Logger
	metrics    *tenantmetrics.Metrics
}

type Option func(*Provisioner)

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(p *Provisioner) {
		p.metrics = m
	}
}

func WithRunner(r *saga.Runner) Option {
	return func(p *Provisioner) {
		p.runner = r
	}
}

func WithKeyForgetter(k KeyForgetter) Option {
	return func(p *Provisioner) {
		p.keys = k
	}
}

func New(
	tenants TenantStore,
	partitions Partitions,
	idp IdentityAdmin,
	members MemberMirror,
	locker Locker,
	audit AuditRecorder,
	logger *slog.Logger,
	opts ...Option,
) *Provisioner {
	p := &Provisioner{
		tenants:    tenants,
		partitions: partitions,
		idp:        idp,
		members:    members,
		locker:     locker,
		audit:      audit,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runner == nil {
		p.runner = saga.NewRunner(saga.WithLogger(logger))
	}
	return p
}

// Create provisions a tenant end to end and returns it active. A pending
// row left by an interrupted attempt for the same slug is resumed.
func (p *Provisioner) Create(ctx context.Context, req *tenantmodels.CreateTenantRequest) (*tenantmodels.Tenant, error) {
	unlock, err := p.locker.Lock(ctx, req.Slug)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "another provisioning attempt for this slug is still running")
	}
	defer unlock()

	start := time.Now()
	now := requestcontext.Now(ctx).UTC()

	tenant, resumed, err := p.pendingTenant(ctx, req, now)
	if err != nil {
		return nil, err
	}
	scope, err := partition.ForProvisioning(tenant.SchemaName)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "provisioning tenant",
		"tenant_id", tenant.ID,
		"slug", tenant.Slug,
		"resumed", resumed,
	)

	var adminUserID string
	steps := []saga.Step{
		{
			Name: models.StepRegistry,
			Do: func(ctx context.Context) error {
				if resumed {
					return nil
				}
				return p.tenants.Create(ctx, tenant)
			},
			Undo: func(ctx context.Context) error {
				if err := p.tenants.Delete(ctx, tenant.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				return nil
			},
		},
		{
			Name: models.StepPartition,
			Do: func(ctx context.Context) error {
				return p.partitions.CreatePartition(ctx, scope)
			},
			Undo: func(ctx context.Context) error {
				return p.partitions.DropPartition(ctx, scope)
			},
		},
		{
			Name: models.StepRealm,
			Do: func(ctx context.Context) error {
				return p.idp.EnsureRealm(ctx, tenant.RealmName, tenant.Name)
			},
			Undo: func(ctx context.Context) error {
				return p.idp.DeleteRealm(ctx, tenant.RealmName)
			},
		},
		{
			Name: models.StepRoles,
			Do: func(ctx context.Context) error {
				return p.idp.EnsureRealmRoles(ctx, tenant.RealmName, tenantRoles)
			},
		},
		{
			Name: models.StepClient,
			Do: func(ctx context.Context) error {
				_, err := p.idp.EnsureAppClient(ctx, tenant.RealmName)
				return err
			},
		},
		{
			Name: models.StepAdminUser,
			Do: func(ctx context.Context) error {
				userID, err := p.idp.EnsureUser(ctx, tenant.RealmName, models.Account{
					Email:     req.AdminEmail,
					FirstName: req.AdminFirstName,
					LastName:  req.AdminLastName,
					Password:  req.AdminPassword,
				})
				if err != nil {
					return err
				}
				adminUserID = userID
				return p.idp.AssignRealmRoles(ctx, tenant.RealmName, userID, []string{identity.RoleAdmin})
			},
		},
		{
			Name: models.StepMirror,
			Do: func(ctx context.Context) error {
				_, err := p.members.MirrorMember(ctx, scope, &membermodels.Member{
					IdPUserID: adminUserID,
					Email:     req.AdminEmail,
					FirstName: req.AdminFirstName,
					LastName:  req.AdminLastName,
					Role:      identity.RoleAdmin,
					Status:    membermodels.MemberStatusActive,
				})
				return err
			},
		},
		{
			Name: models.StepActivate,
			Do: func(ctx context.Context) error {
				if err := tenant.Activate(requestcontext.Now(ctx).UTC()); err != nil {
					return err
				}
				return p.tenants.UpdateStatus(ctx, tenant.ID, tenant.Status, tenant.UpdatedAt)
			},
		},
	}

	if failure := p.runner.Execute(ctx, "create_tenant", steps); failure != nil {
		return nil, p.failed(ctx, tenant, failure, start)
	}

	p.metrics.IncrementTenantCreated()
	p.metrics.ObserveProvisioning(start, "", false)
	p.logger.InfoContext(ctx, "tenant provisioned",
		"tenant_id", tenant.ID,
		"slug", tenant.Slug,
		"duration", time.Since(start),
	)
	p.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(tenant.ID),
		UserID:       admin.ActorID(ctx),
		Action:       auditmodels.ActionTenantCreated,
		ResourceType: auditmodels.ResourceTenant,
		ResourceID:   tenant.ID.String(),
		Details: map[string]any{
			"slug":        tenant.Slug,
			"realm":       tenant.RealmName,
			"admin_email": req.AdminEmail,
		},
	})
	return tenant, nil
}

// pendingTenant returns the record the saga will build out. Active or
// suspended tenants with the slug are a conflict.
func (p *Provisioner) pendingTenant(ctx context.Context, req *tenantmodels.CreateTenantRequest, now time.Time) (*tenantmodels.Tenant, bool, error) {
	existing, err := p.tenants.FindBySlug(ctx, req.Slug)
	switch {
	case err == nil && existing.Status == tenantmodels.TenantStatusPending:
		return existing, true, nil
	case err == nil:
		return nil, false, dErrors.New(dErrors.CodeConflict, "a tenant with this slug already exists")
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check slug")
	}

	tenant, err := tenantmodels.NewPendingTenant(id.NewTenantID(), req.Name, req.Slug, req.Settings, now)
	if err != nil {
		return nil, false, err
	}
	return tenant, false, nil
}

func (p *Provisioner) failed(ctx context.Context, tenant *tenantmodels.Tenant, failure *saga.Failure, start time.Time) error {
	p.metrics.ObserveProvisioning(start, failure.Step, len(failure.Residue) > 0)

	residue := make([]string, 0, len(failure.Residue))
	for _, r := range failure.Residue {
		residue = append(residue, r.String())
	}
	p.logger.ErrorContext(ctx, "tenant provisioning failed",
		"tenant_id", tenant.ID,
		"slug", tenant.Slug,
		"step", failure.Step,
		"error", failure.Err,
		"residue", residue,
	)
	entry := auditmodels.Entry{
		UserID:       admin.ActorID(ctx),
		Action:       auditmodels.ActionProvisioningFailed,
		ResourceType: auditmodels.ResourceTenant,
		ResourceID:   tenant.ID.String(),
		Details: map[string]any{
			"slug":    tenant.Slug,
			"step":    failure.Step,
			"error":   failure.Err.Error(),
			"residue": residue,
		},
	}
	// The tenant never existed when its registry insert was the failure.
	if failure.Step != models.StepRegistry {
		entry.TenantID = auditmodels.TenantRef(tenant.ID)
	}
	p.audit.Record(ctx, entry)

	return &ProvisioningError{
		Step:    failure.Step,
		Err:     classify(failure),
		Residue: failure.Residue,
	}
}

// classify sets the code the caller sees. Codes already present on the step
// error are overridden: a failed step is a provisioning failure whatever
// layer reported it.
func classify(failure *saga.Failure) error {
	code, msg := dErrors.CodeProvisioningFailed, "provisioning failed at "+failure.Step
	switch {
	case errors.Is(failure.Err, sentinel.ErrAlreadyExists):
		code, msg = dErrors.CodeConflict, "a tenant with this slug already exists"
	case errors.Is(failure.Err, context.Canceled), errors.Is(failure.Err, context.DeadlineExceeded):
		code, msg = dErrors.CodeTimeout, "provisioning interrupted at "+failure.Step
	}
	return &dErrors.Error{Code: code, Message: msg, Err: failure.Err}
}

// Delete removes a tenant. The realm is removed best effort; the partition
// must be dropped before the registry row goes, so a failed drop leaves the
// tenant listed and retryable.
func (p *Provisioner) Delete(ctx context.Context, tenantID id.TenantID) error {
	tenant, err := p.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
	}

	unlock, err := p.locker.Lock(ctx, tenant.Slug)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "tenant is being provisioned")
	}
	defer unlock()

	detached := context.WithoutCancel(ctx)

	realmErr := p.idp.DeleteRealm(detached, tenant.RealmName)
	if realmErr != nil {
		p.logger.WarnContext(ctx, "realm delete failed, continuing",
			"tenant_id", tenant.ID,
			"realm", tenant.RealmName,
			"error", realmErr,
		)
	}

	scope, err := partition.ForTenant(tenant)
	if err != nil {
		return err
	}
	if err := p.partitions.DropPartition(detached, scope); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to drop tenant partition")
	}
	if err := p.tenants.Delete(detached, tenant.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete tenant")
	}
	if p.keys != nil {
		p.keys.Forget(tenant.RealmName)
	}

	p.metrics.IncrementTenantDeleted()
	p.logger.InfoContext(ctx, "tenant deleted",
		"tenant_id", tenant.ID,
		"slug", tenant.Slug,
		"actor", admin.ActorID(ctx),
	)
	details := map[string]any{"slug": tenant.Slug, "realm": tenant.RealmName}
	if realmErr != nil {
		details["realm_error"] = realmErr.Error()
	}
	p.audit.Record(ctx, auditmodels.Entry{
		TenantID:     auditmodels.TenantRef(tenant.ID),
		UserID:       admin.ActorID(ctx),
		Action:       auditmodels.ActionTenantDeleted,
		ResourceType: auditmodels.ResourceTenant,
		ResourceID:   tenant.ID.String(),
		Details:      details,
	})
	return nil
}
