package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	"taskhub/internal/identity/identitytest"
	"taskhub/internal/identity/token"
	"taskhub/internal/platform/config"
	"taskhub/internal/platform/health"
	tenantmodels "taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/middleware/request"
)

type bearerAuthenticator struct {
	tokens map[string]*identity.Identity
}

func (a *bearerAuthenticator) Authenticate(_ context.Context, authorization string) (*identity.Identity, error) {
	if ident, ok := a.tokens[authorization]; ok {
		return ident, nil
	}
	return nil, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid bearer token")
}

type auditSink struct {
	entries []auditmodels.Entry
}

func (a *auditSink) Record(_ context.Context, entry auditmodels.Entry) {
	a.entries = append(a.entries, entry)
}

type denials struct {
	actions []string
}

func (d *denials) IncrementAccessDenied(action string) { d.actions = append(d.actions, action) }

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

type stubTenants struct{}

func (stubTenants) RegisterAdmin(r chi.Router)  { r.Get("/tenants", ok) }
func (stubTenants) RegisterPublic(r chi.Router) { r.Get("/tenants/lookup/{slug}", ok) }

type stubMembers struct{}

func (stubMembers) RegisterMe(r chi.Router)    { r.Get("/me", ok) }
func (stubMembers) RegisterUsers(r chi.Router) { r.Get("/users", ok) }
func (stubMembers) RegisterUserAdmin(r chi.Router) {
	r.Post("/users", ok)
	r.Delete("/users/{id}", ok)
}

type stubAudit struct{}

func (stubAudit) Register(r chi.Router) { r.Get("/audit/entries", ok) }

type RouterSuite struct {
	suite.Suite
	router  http.Handler
	audit   *auditSink
	denials *denials
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	now := time.Now()
	tenant, err := tenantmodels.NewPendingTenant(id.NewTenantID(), "Acme Corp", "acme", nil, now)
	s.Require().NoError(err)
	s.Require().NoError(tenant.Activate(now))
	bind := func(sub string, roles ...string) *identity.Identity {
		return identitytest.New(s.T(), tenant, token.Claims{Subject: sub, Email: sub + "@acme.io", Realm: "acme", Roles: roles})
	}

	s.audit = &auditSink{}
	s.denials = &denials{}
	reg := prometheus.NewRegistry()
	s.router, err = NewRouter(Deps{
		Server: config.Server{
			AdminToken:     "ops-secret",
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Gatherer:       reg,
		RequestMetrics: request.NewMetrics(reg),
		Authenticator: &bearerAuthenticator{tokens: map[string]*identity.Identity{
			"Bearer admin":   bind("alice", identity.RoleAdmin),
			"Bearer manager": bind("bob", identity.RoleManager),
			"Bearer member":  bind("carol", identity.RoleMember),
		}},
		Audit:    s.audit,
		Denials:  s.denials,
		Health:   health.New(time.Second),
		Tenants:  stubTenants{},
		Members:  stubMembers{},
		AuditLog: stubAudit{},
	})
	s.Require().NoError(err)
}

func (s *RouterSuite) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestProbesAndMetricsAreOpen() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health/live", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", nil).Code)
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	rec := s.do(http.MethodGet, "/health/live", map[string]string{"X-Request-ID": "req-123"})
	s.Equal("req-123", rec.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestPublicLookupNeedsNoCredentials() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/tenants/lookup/acme", nil).Code)
}

func (s *RouterSuite) TestAdminRoutesNeedToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/tenants", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/tenants", map[string]string{"X-Admin-Token": "wrong"}).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/tenants", map[string]string{"X-Admin-Token": "ops-secret"}).Code)
}

func (s *RouterSuite) TestIdentityRoutesNeedBearer() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/me", map[string]string{"Authorization": "Bearer member"}).Code)
	s.Empty(s.audit.entries)
}

func (s *RouterSuite) TestRoleGates() {
	cases := []struct {
		path   string
		bearer string
		status int
	}{
		{"/api/users", "Bearer admin", http.StatusOK},
		{"/api/users", "Bearer manager", http.StatusOK},
		{"/api/users", "Bearer member", http.StatusForbidden},
		{"/api/audit/entries", "Bearer admin", http.StatusOK},
		{"/api/audit/entries", "Bearer manager", http.StatusForbidden},
	}
	for _, tc := range cases {
		s.Run(tc.path+" "+tc.bearer, func() {
			rec := s.do(http.MethodGet, tc.path, map[string]string{"Authorization": tc.bearer})
			s.Equal(tc.status, rec.Code)
		})
	}
	s.Equal([]string{ActionUsersRead, ActionAuditRead}, s.denials.actions)
	s.Require().Len(s.audit.entries, 2)
	s.Equal(auditmodels.ActionAccessDenied, s.audit.entries[0].Action)
}

func (s *RouterSuite) TestUserWritesAreAdminOnly() {
	cases := []struct {
		method string
		bearer string
		status int
	}{
		{http.MethodPost, "Bearer admin", http.StatusOK},
		{http.MethodPost, "Bearer manager", http.StatusForbidden},
		{http.MethodDelete, "Bearer member", http.StatusForbidden},
		{http.MethodDelete, "Bearer admin", http.StatusOK},
	}
	for _, tc := range cases {
		s.Run(tc.method+" "+tc.bearer, func() {
			path := "/api/users"
			if tc.method == http.MethodDelete {
				path += "/" + id.NewMemberID().String()
			}
			rec := s.do(tc.method, path, map[string]string{"Authorization": tc.bearer})
			s.Equal(tc.status, rec.Code)
		})
	}
	s.Equal([]string{ActionUsersWrite, ActionUsersWrite}, s.denials.actions)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/users", map[string]string{"Authorization": "Bearer manager"}).Code,
		"the read gate still admits managers")
}

func (s *RouterSuite) TestCORSPreflight() {
	rec := s.do(http.MethodOptions, "/api/me", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodGet,
	})
	s.Equal("http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *RouterSuite) TestRejectsBadTrustedProxy() {
	_, err := NewRouter(Deps{Server: config.Server{TrustedProxies: []string{"not-a-cidr"}}})
	s.Error(err)
}
