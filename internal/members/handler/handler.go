package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskhub/internal/identity"
	"taskhub/internal/members/models"
	id "taskhub/pkg/domain"
	dErrors "taskhub/pkg/domain-errors"
	"taskhub/pkg/platform/httputil"
	"taskhub/pkg/requestcontext"
)

// Service defines the member operations exposed over HTTP.
type Service interface {
	ListMembers(ctx context.Context, ident *identity.Identity, limit, offset int) ([]*models.Member, int, error)
	GetMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID) (*models.Member, error)
	CreateMember(ctx context.Context, ident *identity.Identity, req *models.CreateMemberRequest) (*models.Member, error)
	UpdateMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID, upd models.MemberUpdate) (*models.Member, error)
	ReplaceRoles(ctx context.Context, ident *identity.Identity, memberID id.MemberID, roles []string) (*models.Member, error)
	RemoveRole(ctx context.Context, ident *identity.Identity, memberID id.MemberID, role string) (*models.Member, error)
	DeleteMember(ctx context.Context, ident *identity.Identity, memberID id.MemberID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterMe mounts the identity echo. Any authenticated member may call it.
func (h *Handler) RegisterMe(r chi.Router) {
	r.Get("/me", h.HandleMe)
}

// RegisterUsers mounts the member directory. Callers wrap r with the role gate.
func (h *Handler) RegisterUsers(r chi.Router) {
	r.Get("/users", h.HandleListUsers)
	r.Get("/users/{id}", h.HandleGetUser)
}

// RegisterUserAdmin mounts member management. Callers gate r to admins.
func (h *Handler) RegisterUserAdmin(r chi.Router) {
	r.Post("/users", h.HandleCreateUser)
	r.Patch("/users/{id}", h.HandleUpdateUser)
	r.Delete("/users/{id}", h.HandleDeleteUser)
	r.Put("/users/{id}/roles", h.HandleReplaceRoles)
	r.Delete("/users/{id}/roles/{role}", h.HandleRemoveRole)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.MeResponse{
		UserID:      ident.UserID().String(),
		Email:       ident.Email(),
		DisplayName: ident.DisplayName(),
		Roles:       ident.Roles(),
		TenantID:    ident.TenantID().String(),
		Realm:       ident.Realm(),
	})
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := identity.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}

	limit, offset, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	members, total, err := h.service.ListMembers(ctx, ident, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list members failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", ident.TenantID(),
		)
		httputil.WriteError(w, err)
		return
	}

	resp := &models.MemberListResponse{
		Data:   make([]models.MemberResponse, 0, len(members)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, m := range members {
		resp.Data = append(resp.Data, models.ToMemberResponse(m))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := identity.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}

	memberID, err := id.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	member, err := h.service.GetMember(ctx, ident, memberID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "get member failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToMemberResponse(member))
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := identity.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CreateMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	member, err := h.service.CreateMember(ctx, ident, req)
	if err != nil {
		h.logFailure(ctx, "create member failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToMemberResponse(member))
}

func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	member, err := h.service.UpdateMember(ctx, ident, memberID, req.Update())
	if err != nil {
		h.logFailure(ctx, "update member failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToMemberResponse(member))
}

func (h *Handler) HandleReplaceRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ReplaceRolesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	member, err := h.service.ReplaceRoles(ctx, ident, memberID, req.Roles)
	if err != nil {
		h.logFailure(ctx, "replace roles failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToMemberResponse(member))
}

func (h *Handler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, memberID, ok := h.target(w, r)
	if !ok {
		return
	}

	member, err := h.service.RemoveRole(ctx, ident, memberID, strings.ToLower(chi.URLParam(r, "role")))
	if err != nil {
		h.logFailure(ctx, "remove role failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToMemberResponse(member))
}

func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, memberID, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMember(ctx, ident, memberID); err != nil {
		h.logFailure(ctx, "delete member failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// target reads the caller and the {id} path parameter, writing the error
// response when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*identity.Identity, id.MemberID, bool) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "no identity"))
		return nil, id.MemberID{}, false
	}
	memberID, err := id.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return nil, id.MemberID{}, false
	}
	return ident, memberID, true
}

// logFailure skips the errors callers cause.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeValidation:
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	limit, offset = 50, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			return 0, 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
		}
	}
	return limit, offset, nil
}
