package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity/keys"
	"taskhub/internal/identity/token"
	"taskhub/internal/sentinel"
	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/testutil/idp"
)

type realmTenants struct {
	byRealm map[string]*tenantmodels.Tenant
	err     error
}

func (r *realmTenants) FindByRealm(_ context.Context, realm string) (*tenantmodels.Tenant, error) {
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.byRealm[realm]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t, nil
}

type recordedAudit struct {
	mu      sync.Mutex
	entries []auditmodels.Entry
}

func (r *recordedAudit) Record(_ context.Context, e auditmodels.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordedAudit) all() []auditmodels.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auditmodels.Entry(nil), r.entries...)
}

type AuthenticatorSuite struct {
	suite.Suite
	idp     *idp.Issuer
	tenants *realmTenants
	audit   *recordedAudit
	auth    *Authenticator
	alpha   *tenantmodels.Tenant
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}

func (s *AuthenticatorSuite) SetupTest() {
	s.idp = idp.NewIssuer(s.T())
	s.idp.AddRealm("alpha")
	s.idp.AddRealm("beta")
	s.idp.AddRealm("ghost")

	now := time.Now()
	alpha, err := tenantmodels.NewPendingTenant(id.NewTenantID(), "Alpha Inc", "alpha", nil, now)
	s.Require().NoError(err)
	s.Require().NoError(alpha.Activate(now))
	beta, err := tenantmodels.NewPendingTenant(id.NewTenantID(), "Beta Co", "beta", nil, now)
	s.Require().NoError(err)
	s.Require().NoError(beta.Activate(now))
	_, err = beta.Suspend(now)
	s.Require().NoError(err)
	s.alpha = alpha

	s.tenants = &realmTenants{byRealm: map[string]*tenantmodels.Tenant{"alpha": alpha, "beta": beta}}
	s.audit = &recordedAudit{}
	resolver := keys.NewResolver(s.idp.URL(), keys.WithHTTPClient(s.idp.Client()))
	verifier := token.NewVerifier(token.Config{IssuerBaseURL: s.idp.URL(), Audience: "account"}, resolver)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.auth = NewAuthenticator(verifier, s.tenants, s.audit, logger)
}

func (s *AuthenticatorSuite) bearer(tok idp.Token) string {
	return "Bearer " + s.idp.Mint(tok)
}

func (s *AuthenticatorSuite) TestValidTokenBindsTenant() {
	ident, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{
		Realm:      "alpha",
		Subject:    "user-1",
		Email:      "ada@alpha.io",
		Name:       "Ada",
		RealmRoles: []string{"admin"},
	}))
	s.Require().NoError(err)

	s.Equal(id.SubjectID("user-1"), ident.UserID())
	s.Equal("ada@alpha.io", ident.Email())
	s.Equal("alpha", ident.Realm())
	s.Equal(s.alpha.ID, ident.TenantID())
	s.Equal("tenant_alpha", ident.Partition())
	s.True(ident.HasRole(RoleAdmin))
	s.Empty(s.audit.all())
}

func (s *AuthenticatorSuite) TestMissingHeaderIsNotAudited() {
	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := s.auth.Authenticate(context.Background(), header)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated), header)
	}
	s.Empty(s.audit.all())
}

func (s *AuthenticatorSuite) TestSchemeIsCaseInsensitive() {
	raw := s.idp.Mint(idp.Token{Realm: "alpha", Subject: "user-1"})
	_, err := s.auth.Authenticate(context.Background(), "bearer "+raw)
	s.NoError(err)
}

func (s *AuthenticatorSuite) TestExpiredTokenAudited() {
	_, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{
		Realm:          "alpha",
		Subject:        "user-1",
		IssuedAtOffset: -2 * time.Hour,
		ExpiresIn:      time.Minute,
	}))
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Equal(auditmodels.ActionAuthFailure, entries[0].Action)
	s.Nil(entries[0].TenantID)
	s.Equal("token_expired", entries[0].Details["reason"])
}

func (s *AuthenticatorSuite) TestForeignKeyIsInvalid() {
	_, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{
		Realm:         "alpha",
		Subject:       "user-1",
		SignWithRealm: "beta",
	}))
	s.True(dErrors.HasCode(err, dErrors.CodeTokenInvalid))

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Nil(entries[0].TenantID)
	s.Equal("invalid_token", entries[0].Details["reason"])
}

func (s *AuthenticatorSuite) TestUnknownRealm() {
	_, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{Realm: "ghost", Subject: "user-9"}))
	s.True(dErrors.HasCode(err, dErrors.CodeTenantUnknown))

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Nil(entries[0].TenantID)
	s.Equal("unknown_realm", entries[0].Details["reason"])
}

func (s *AuthenticatorSuite) TestSuspendedTenant() {
	_, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{Realm: "beta", Subject: "user-2"}))
	s.True(dErrors.HasCode(err, dErrors.CodeTenantInactive))

	entries := s.audit.all()
	s.Require().Len(entries, 1)
	s.Require().NotNil(entries[0].TenantID)
	s.Equal(s.tenants.byRealm["beta"].ID, *entries[0].TenantID)
	s.Equal("tenant_not_active", entries[0].Details["reason"])
}

func (s *AuthenticatorSuite) TestRegistryFailureIsInternal() {
	s.tenants.err = errors.New("connection refused")
	_, err := s.auth.Authenticate(context.Background(), s.bearer(idp.Token{Realm: "alpha", Subject: "user-1"}))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Empty(s.audit.all())
}

func TestHasAnyRole(t *testing.T) {
	member := &Identity{roles: []string{RoleMember}}
	manager := &Identity{roles: []string{RoleMember, RoleManager}}

	assert.False(t, HasAnyRole(member, RoleAdmin, RoleManager))
	assert.True(t, HasAnyRole(manager, RoleAdmin, RoleManager))
	assert.False(t, HasAnyRole(manager), "empty requirement denies")
	assert.False(t, HasAnyRole(nil, RoleMember))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ident := &Identity{userID: "u-1", roles: []string{RoleAdmin}}
	got, ok := FromContext(WithIdentity(context.Background(), ident))
	require.True(t, ok)
	assert.Equal(t, id.SubjectID("u-1"), got.UserID())

	roles := got.Roles()
	roles[0] = "tampered"
	assert.True(t, got.HasRole(RoleAdmin))
}
