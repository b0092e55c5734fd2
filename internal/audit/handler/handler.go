package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"taskhub/internal/audit/models"
	"taskhub/internal/identity"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/httputil"
	"taskhub/pkg/requestcontext"
)

// Service is the read side of the audit trail.
type Service interface {
	Query(ctx context.Context, tenantID id.TenantID, filter models.Filter) (*models.Page, error)
	Summary(ctx context.Context, tenantID id.TenantID, from, to time.Time) (*models.Summary, error)
}

// Handler serves a tenant admin's view of their own tenant's audit trail.
// The tenant always comes from the caller's identity, never from the query.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/entries", h.HandleListEntries)
	r.Get("/audit/summary", h.HandleSummary)
}

func (h *Handler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := identity.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.Query(ctx, ident.TenantID(), filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", ident.TenantID(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := identity.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}

	q := r.URL.Query()
	from, err := parseTime(q, "from")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseTime(q, "to")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sum, err := h.service.Summary(ctx, ident.TenantID(), from, to)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit summary failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", ident.TenantID(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func parseFilter(q url.Values) (models.Filter, error) {
	f := models.Filter{
		UserID:       q.Get("user_id"),
		Action:       models.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
	}
	if f.Action != "" && !f.Action.IsValid() {
		return f, dErrors.New(dErrors.CodeValidation, "unknown action")
	}

	var err error
	if f.From, err = parseTime(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q, "to"); err != nil {
		return f, err
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 1 || f.Limit > models.MaxPageSize {
			return f, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
		}
	}
	return f, nil
}

func parseTime(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, key+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
