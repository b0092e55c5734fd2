// Package identitytest hands other packages' tests an Identity produced the
// same way the request path produces one: through Authenticator.Authenticate.
package identitytest

import (
	"context"
	"log/slog"
	"testing"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	"taskhub/internal/identity/token"
	tenantmodels "taskhub/internal/tenant/models"
)

type acceptClaims struct{ claims *token.Claims }

func (v acceptClaims) Verify(context.Context, string) (*token.Claims, error) {
	return v.claims, nil
}

type fixedTenant struct{ tenant *tenantmodels.Tenant }

func (f fixedTenant) FindByRealm(context.Context, string) (*tenantmodels.Tenant, error) {
	return f.tenant, nil
}

type discardAudit struct{}

func (discardAudit) Record(context.Context, auditmodels.Entry) {}

// New authenticates claims as a caller of tenant. The tenant must be active;
// an empty claims realm defaults to the tenant's realm.
func New(t testing.TB, tenant *tenantmodels.Tenant, claims token.Claims) *identity.Identity {
	t.Helper()
	if claims.Realm == "" {
		claims.Realm = tenant.RealmName
	}
	authn := identity.NewAuthenticator(acceptClaims{&claims}, fixedTenant{tenant}, discardAudit{},
		slog.New(slog.DiscardHandler))
	ident, err := authn.Authenticate(context.Background(), "Bearer test-token")
	if err != nil {
		t.Fatalf("identitytest: authenticate %s: %v", tenant.Slug, err)
	}
	return ident
}
