// Package admin guards platform operator endpoints (tenant provisioning and
// lifecycle) with a shared operator token.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"taskhub/pkg/requestcontext"
)

type actorKey struct{}

// ActorID returns the operator named by X-Admin-Actor-ID, or "".
func ActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorKey{}).(string)
	return v
}

// WithActorID is used by tests and background jobs acting as an operator.
func WithActorID(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match.
// An empty expected token disables the operator surface entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","error_description":"admin token required"}`))
				return
			}
			if actor := r.Header.Get("X-Admin-Actor-ID"); actor != "" {
				ctx = WithActorID(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
