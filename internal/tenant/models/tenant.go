package models

import (
	"regexp"
	"strings"
	"time"

	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
)

type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "pending"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusPending, TenantStatusActive, TenantStatusSuspended:
		return true
	}
	return false
}

// Tenant is one registered organization. Slug, RealmName and SchemaName are
// fixed at creation and unique across the registry.
type Tenant struct {
	ID         id.TenantID    `json:"id"`
	Name       string         `json:"name"`
	Slug       string         `json:"slug"`
	RealmName  string         `json:"realm_name"`
	SchemaName string         `json:"-"`
	Status     TenantStatus   `json:"status"`
	Settings   map[string]any `json:"settings"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Activate completes provisioning.
func (t *Tenant) Activate(now time.Time) error {
	if t.Status != TenantStatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "only pending tenants can be activated")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

// Suspend moves an active tenant to suspended. Suspending a suspended tenant
// is a no-op and reports changed=false.
func (t *Tenant) Suspend(now time.Time) (changed bool, err error) {
	switch t.Status {
	case TenantStatusSuspended:
		return false, nil
	case TenantStatusActive:
		t.Status = TenantStatusSuspended
		t.UpdatedAt = now
		return true, nil
	default:
		return false, dErrors.New(dErrors.CodeInvariantViolation, "tenant is still provisioning")
	}
}

// Reactivate moves a suspended tenant back to active. Reactivating an active
// tenant is a no-op.
func (t *Tenant) Reactivate(now time.Time) (changed bool, err error) {
	switch t.Status {
	case TenantStatusActive:
		return false, nil
	case TenantStatusSuspended:
		t.Status = TenantStatusActive
		t.UpdatedAt = now
		return true, nil
	default:
		return false, dErrors.New(dErrors.CodeInvariantViolation, "tenant is still provisioning")
	}
}

// PublicSettings returns only the allowlisted settings keys.
func (t *Tenant) PublicSettings(allow []string) map[string]any {
	out := make(map[string]any, len(allow))
	for _, k := range allow {
		if v, ok := t.Settings[k]; ok {
			out[k] = v
		}
	}
	return out
}

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)
	nonAlnum         = regexp.MustCompile(`[^a-z0-9]`)
	schemaNamePrefix = "tenant_"
)

// MaxSlugLength keeps the derived schema name within PostgreSQL's 63 byte identifier limit.
const MaxSlugLength = 56

// ValidateSlug checks the slug format shared by realm and schema derivation.
func ValidateSlug(slug string) error {
	if len(slug) < 2 || len(slug) > MaxSlugLength {
		return dErrors.New(dErrors.CodeValidation, "slug must be between 2 and 56 characters")
	}
	if !slugPattern.MatchString(slug) {
		return dErrors.New(dErrors.CodeValidation, "slug may contain only lowercase letters, digits and hyphens")
	}
	return nil
}

// RealmNameFor returns the identity realm for a validated slug.
func RealmNameFor(slug string) string {
	return slug
}

// SchemaNameFor returns the partition name for a validated slug.
func SchemaNameFor(slug string) string {
	return schemaNamePrefix + nonAlnum.ReplaceAllString(strings.ToLower(slug), "_")
}

// NewPendingTenant builds the registry record written by the first provisioning step.
func NewPendingTenant(tenantID id.TenantID, name, slug string, settings map[string]any, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "name must be between 2 and 255 characters")
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return &Tenant{
		ID:         tenantID,
		Name:       name,
		Slug:       slug,
		RealmName:  RealmNameFor(slug),
		SchemaName: SchemaNameFor(slug),
		Status:     TenantStatusPending,
		Settings:   settings,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// TenantSummary is the list/read model: a tenant plus its member count.
type TenantSummary struct {
	Tenant
	UserCount int `json:"user_count"`
}

// ListFilter selects tenants for the operator listing.
type ListFilter struct {
	Status *TenantStatus
	Limit  int
	Offset int
}
