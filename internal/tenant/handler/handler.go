package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskhub/internal/tenant/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/httputil"
	"taskhub/pkg/requestcontext"
)

// Directory is the read and lifecycle side of the tenant registry.
type Directory interface {
	GetTenant(ctx context.Context, tenantID id.TenantID) (*models.TenantSummary, error)
	ListTenants(ctx context.Context, filter models.ListFilter) ([]*models.TenantSummary, int, error)
	UpdateTenant(ctx context.Context, tenantID id.TenantID, req *models.UpdateTenantRequest) (*models.Tenant, error)
	SuspendTenant(ctx context.Context, tenantID id.TenantID, reason string) (*models.Tenant, error)
	ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	LookupPublic(ctx context.Context, slug string) (*models.PublicTenantResponse, error)
}

// Provisioner creates and tears down the external resources of a tenant.
type Provisioner interface {
	Create(ctx context.Context, req *models.CreateTenantRequest) (*models.Tenant, error)
	Delete(ctx context.Context, tenantID id.TenantID) error
}

type Handler struct {
	directory   Directory
	provisioner Provisioner
	logger      *slog.Logger
}

func New(directory Directory, provisioner Provisioner, logger *slog.Logger) *Handler {
	return &Handler{directory: directory, provisioner: provisioner, logger: logger}
}

// RegisterAdmin mounts the operator routes. Callers wrap r with the admin token check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/tenants", h.HandleCreateTenant)
	r.Get("/tenants", h.HandleListTenants)
	r.Get("/tenants/{id}", h.HandleGetTenant)
	r.Patch("/tenants/{id}", h.HandleUpdateTenant)
	r.Delete("/tenants/{id}", h.HandleDeleteTenant)
	r.Post("/tenants/{id}/suspend", h.HandleSuspendTenant)
	r.Post("/tenants/{id}/reactivate", h.HandleReactivateTenant)
}

// RegisterPublic mounts the unauthenticated slug lookup used by login pages.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/tenants/lookup/{slug}", h.HandleLookup)
}

func (h *Handler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenant, err := h.provisioner.Create(ctx, req)
	if err != nil {
		h.logFailure(ctx, "create tenant failed", err, "slug", req.Slug)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToTenantResponse(tenant))
}

func (h *Handler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tenants, total, err := h.directory.ListTenants(ctx, filter)
	if err != nil {
		h.logFailure(ctx, "list tenants failed", err)
		httputil.WriteError(w, err)
		return
	}

	resp := &models.TenantListResponse{
		Tenants: make([]models.TenantResponse, 0, len(tenants)),
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, models.ToSummaryResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	summary, err := h.directory.GetTenant(r.Context(), tenantID)
	if err != nil {
		h.logFailure(r.Context(), "get tenant failed", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToSummaryResponse(summary))
}

func (h *Handler) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateTenantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	tenant, err := h.directory.UpdateTenant(ctx, tenantID, req)
	if err != nil {
		h.logFailure(ctx, "update tenant failed", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
}

func (h *Handler) HandleSuspendTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SuspendTenantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	tenant, err := h.directory.SuspendTenant(ctx, tenantID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "suspend tenant failed", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
}

func (h *Handler) HandleReactivateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	tenant, err := h.directory.ReactivateTenant(r.Context(), tenantID)
	if err != nil {
		h.logFailure(r.Context(), "reactivate tenant failed", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToTenantResponse(tenant))
}

func (h *Handler) HandleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}
	if err := h.provisioner.Delete(r.Context(), tenantID); err != nil {
		h.logFailure(r.Context(), "delete tenant failed", err, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := h.directory.LookupPublic(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.logFailure(r.Context(), "tenant lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) tenantIDParam(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

// logFailure keeps client errors out of the error log.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestcontext.RequestID(ctx))
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeProvisioningFailed, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.InfoContext(ctx, msg, attrs...)
	}
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	filter := models.ListFilter{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := models.TenantStatus(v)
		if !status.IsValid() {
			return filter, dErrors.New(dErrors.CodeValidation, "status must be one of pending, active, suspended")
		}
		filter.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
		}
		filter.Offset = offset
	}
	return filter, nil
}
