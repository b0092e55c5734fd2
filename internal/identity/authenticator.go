package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity/metrics"
	"taskhub/internal/identity/token"
	"taskhub/internal/sentinel"
	tenantmodels "taskhub/internal/tenant/models"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/requestcontext"
)

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// TenantFinder resolves the tenant that owns a realm.
type TenantFinder interface {
	FindByRealm(ctx context.Context, realm string) (*tenantmodels.Tenant, error)
}

// AuditRecorder appends audit entries. Implementations never fail the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry auditmodels.Entry)
}

// Authenticator is the only producer of Identity values on the request path.
type Authenticator struct {
	verifier TokenVerifier
	tenants  TenantFinder
	audit    AuditRecorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type AuthenticatorOption func(*Authenticator)

func WithMetrics(m *metrics.Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

func NewAuthenticator(verifier TokenVerifier, tenants TenantFinder, audit AuditRecorder, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		tenants:  tenants,
		audit:    audit,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate validates the Authorization header value and resolves the
// caller's tenant. Failures carry one of CodeUnauthenticated, CodeTokenExpired,
// CodeTokenInvalid, CodeTenantUnknown, CodeTenantInactive or CodeInternal.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	start := time.Now()

	raw, ok := bearerToken(authorization)
	if !ok {
		a.metrics.ObserveAuthentication(metrics.OutcomeMissingToken, start)
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "missing bearer token")
	}

	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "authentication canceled")
		}
		code, outcome, reason := dErrors.CodeTokenInvalid, metrics.OutcomeTokenInvalid, "invalid_token"
		if token.IsExpired(err) {
			code, outcome, reason = dErrors.CodeTokenExpired, metrics.OutcomeTokenExpired, "token_expired"
		}
		a.logger.WarnContext(ctx, "token rejected",
			"reason", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		a.audit.Record(ctx, auditmodels.Entry{
			Action:       auditmodels.ActionAuthFailure,
			ResourceType: auditmodels.ResourceToken,
			Details:      map[string]any{"reason": reason},
		})
		a.metrics.ObserveAuthentication(outcome, start)
		return nil, dErrors.Wrap(err, code, reason)
	}

	tenant, err := a.tenants.FindByRealm(ctx, claims.Realm)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			a.logger.ErrorContext(ctx, "tenant lookup failed",
				"realm", claims.Realm,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			a.metrics.ObserveAuthentication(metrics.OutcomeError, start)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "tenant lookup failed")
		}
		a.audit.Record(ctx, auditmodels.Entry{
			UserID:       claims.Subject,
			Action:       auditmodels.ActionAuthFailure,
			ResourceType: auditmodels.ResourceToken,
			Details:      map[string]any{"reason": "unknown_realm", "realm": claims.Realm},
		})
		a.metrics.ObserveAuthentication(metrics.OutcomeTenantUnknown, start)
		return nil, dErrors.New(dErrors.CodeTenantUnknown, "no tenant for realm")
	}

	if !tenant.IsActive() {
		a.audit.Record(ctx, auditmodels.Entry{
			TenantID:     auditmodels.TenantRef(tenant.ID),
			UserID:       claims.Subject,
			Action:       auditmodels.ActionAuthFailure,
			ResourceType: auditmodels.ResourceToken,
			Details:      map[string]any{"reason": "tenant_not_active", "status": string(tenant.Status)},
		})
		a.metrics.ObserveAuthentication(metrics.OutcomeTenantInactive, start)
		return nil, dErrors.New(dErrors.CodeTenantInactive, "tenant not active")
	}

	a.metrics.ObserveAuthentication(metrics.OutcomeSuccess, start)
	return bind(claims, tenant), nil
}

// bearerToken accepts "Bearer <token>" with a case-insensitive scheme.
func bearerToken(header string) (string, bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(rest)
	return raw, raw != ""
}
