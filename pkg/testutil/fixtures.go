package testutil

import (
	"time"

	"github.com/google/uuid"

	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
)

// TestIDs provides deterministic IDs for tests.
var TestIDs = struct {
	TenantID1 id.TenantID
	TenantID2 id.TenantID
}{
	TenantID1: id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	TenantID2: id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
}

// TenantBuilder builds registry records with derived realm and schema names.
type TenantBuilder struct {
	tenant *tenantmodels.Tenant
}

// NewTenantBuilder starts from an active tenant with slug "acme".
func NewTenantBuilder() *TenantBuilder {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &TenantBuilder{
		tenant: &tenantmodels.Tenant{
			ID:         id.NewTenantID(),
			Name:       "Acme Corp",
			Slug:       "acme",
			RealmName:  tenantmodels.RealmNameFor("acme"),
			SchemaName: tenantmodels.SchemaNameFor("acme"),
			Status:     tenantmodels.TenantStatusActive,
			Settings:   map[string]any{},
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

func (b *TenantBuilder) WithID(tenantID id.TenantID) *TenantBuilder {
	b.tenant.ID = tenantID
	return b
}

func (b *TenantBuilder) WithName(name string) *TenantBuilder {
	b.tenant.Name = name
	return b
}

// WithSlug also rederives the realm and schema names.
func (b *TenantBuilder) WithSlug(slug string) *TenantBuilder {
	b.tenant.Slug = slug
	b.tenant.RealmName = tenantmodels.RealmNameFor(slug)
	b.tenant.SchemaName = tenantmodels.SchemaNameFor(slug)
	return b
}

func (b *TenantBuilder) WithStatus(status tenantmodels.TenantStatus) *TenantBuilder {
	b.tenant.Status = status
	return b
}

func (b *TenantBuilder) WithSettings(settings map[string]any) *TenantBuilder {
	b.tenant.Settings = settings
	return b
}

func (b *TenantBuilder) CreatedAt(t time.Time) *TenantBuilder {
	b.tenant.CreatedAt = t
	b.tenant.UpdatedAt = t
	return b
}

func (b *TenantBuilder) Build() *tenantmodels.Tenant {
	out := *b.tenant
	return &out
}
