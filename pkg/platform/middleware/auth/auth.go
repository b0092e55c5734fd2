package auth

import (
	"context"
	"log/slog"
	"net/http"

	auditmodels "taskhub/internal/audit/models"
	"taskhub/internal/identity"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/httputil"
	"taskhub/pkg/requestcontext"
)

// Authenticator resolves an Authorization header into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*identity.Identity, error)
}

// AuditRecorder receives access-denied entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry auditmodels.Entry)
}

// DenialCounter counts role gate refusals per action.
type DenialCounter interface {
	IncrementAccessDenied(action string)
}

// RequireIdentity authenticates every request and stores the identity in the
// request context. Failures never reach the next handler.
func RequireIdentity(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ident, err := authn.Authenticate(ctx, r.Header.Get("Authorization"))
			if err != nil {
				if dErrors.CodeOf(err) == dErrors.CodeInternal {
					logger.ErrorContext(ctx, "authentication failed",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(ctx, ident)))
		})
	}
}

// RequireRole admits callers holding at least one of roles. Refusals are
// audited as ACCESS_DENIED under the caller's tenant. action names the
// protected operation in the audit details and metrics.
func RequireRole(recorder AuditRecorder, counter DenialCounter, action string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ident, ok := identity.FromContext(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
				return
			}
			if identity.HasAnyRole(ident, roles...) {
				next.ServeHTTP(w, r)
				return
			}

			recorder.Record(ctx, auditmodels.Entry{
				TenantID:     auditmodels.TenantRef(ident.TenantID()),
				UserID:       string(ident.UserID()),
				Action:       auditmodels.ActionAccessDenied,
				ResourceType: action,
				Details: map[string]any{
					"required_roles": roles,
					"user_roles":     ident.Roles(),
					"path":           r.URL.Path,
				},
			})
			if counter != nil {
				counter.IncrementAccessDenied(action)
			}
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient role"))
		})
	}
}
