// Package httptransport assembles the HTTP surface: middleware stack,
// probes, metrics, the operator API and the member-facing API.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskhub/internal/identity"
	"taskhub/internal/platform/config"
	"taskhub/pkg/platform/middleware/admin"
	"taskhub/pkg/platform/middleware/auth"
	"taskhub/pkg/platform/middleware/metadata"
	"taskhub/pkg/platform/middleware/request"
	"taskhub/pkg/platform/middleware/requesttime"
)

// Role gate actions, recorded on ACCESS_DENIED entries and metric labels.
const (
	ActionUsersRead  = "users.read"
	ActionUsersWrite = "users.write"
	ActionAuditRead  = "audit.read"
)

type HealthRoutes interface {
	Register(r chi.Router)
}

type TenantRoutes interface {
	RegisterAdmin(r chi.Router)
	RegisterPublic(r chi.Router)
}

type MemberRoutes interface {
	RegisterMe(r chi.Router)
	RegisterUsers(r chi.Router)
	RegisterUserAdmin(r chi.Router)
}

type AuditRoutes interface {
	Register(r chi.Router)
}

// Deps is everything the router mounts. Gatherer nil disables /metrics.
type Deps struct {
	Server         config.Server
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	RequestMetrics *request.Metrics
	Authenticator  auth.Authenticator
	Audit          auth.AuditRecorder
	Denials        auth.DenialCounter
	Health         HealthRoutes
	Tenants        TenantRoutes
	Members        MemberRoutes
	AuditLog       AuditRoutes
}

func NewRouter(d Deps) (http.Handler, error) {
	trusted, err := metadata.ParseTrustedProxies(d.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(metadata.NewMiddleware(trusted).Handler)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(d.RequestMetrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	d.Health.Register(r)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(request.Timeout(d.Server.RequestTimeout))
		r.Use(request.BodyLimit(d.Server.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)

		r.Group(d.Tenants.RegisterPublic)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(d.Server.AdminToken, d.Logger))
			d.Tenants.RegisterAdmin(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity(d.Authenticator, d.Logger))
			d.Members.RegisterMe(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(d.Audit, d.Denials, ActionUsersRead, identity.RoleAdmin, identity.RoleManager))
				d.Members.RegisterUsers(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(d.Audit, d.Denials, ActionUsersWrite, identity.RoleAdmin))
				d.Members.RegisterUserAdmin(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(d.Audit, d.Denials, ActionAuditRead, identity.RoleAdmin))
				d.AuditLog.Register(r)
			})
		})
	})

	return r, nil
}
