// Package identity turns a bearer token into the request's Identity: who the
// caller is, which tenant they belong to and which partition that tenant owns.
package identity

import (
	"context"
	"slices"

	"taskhub/internal/identity/token"
	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
)

// Realm roles provisioned for every tenant.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// Identity is immutable and lives only for one request. Every field is
// derived from a verified token and the tenant registry; none comes from
// request input.
type Identity struct {
	userID      id.SubjectID
	email       string
	displayName string
	roles       []string
	realm       string
	tenantID    id.TenantID
	partition   string
}

// bind joins verified claims with the registry record of the tenant that owns
// the token's realm.
func bind(claims *token.Claims, tenant *tenantmodels.Tenant) *Identity {
	return &Identity{
		userID:      id.SubjectID(claims.Subject),
		email:       claims.Email,
		displayName: claims.DisplayName,
		roles:       slices.Clone(claims.Roles),
		realm:       claims.Realm,
		tenantID:    tenant.ID,
		partition:   tenant.SchemaName,
	}
}

func (i *Identity) UserID() id.SubjectID  { return i.userID }
func (i *Identity) Email() string         { return i.email }
func (i *Identity) DisplayName() string   { return i.displayName }
func (i *Identity) Realm() string         { return i.realm }
func (i *Identity) TenantID() id.TenantID { return i.tenantID }

// Partition is the tenant's data partition. Only the partition router reads it.
func (i *Identity) Partition() string { return i.partition }

// Roles returns a copy of the caller's roles.
func (i *Identity) Roles() []string { return slices.Clone(i.roles) }

func (i *Identity) HasRole(role string) bool {
	return slices.Contains(i.roles, role)
}

// HasAnyRole is the role gate: true when the identity holds at least one of
// required. A nil identity or an empty requirement list never passes.
func HasAnyRole(ident *Identity, required ...string) bool {
	if ident == nil {
		return false
	}
	for _, r := range required {
		if ident.HasRole(r) {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithIdentity attaches an authenticated identity to ctx.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext returns the authenticated identity, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(*Identity)
	return ident, ok && ident != nil
}
