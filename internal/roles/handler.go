package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{id}/permissions", h.updatePermissions)
		r.Post("/{id}/archive", h.archiveRole)
	})
}

type roleView struct {
	ID          int64    `json:"id"`
	BranchID    int64    `json:"branchId"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Archived    bool     `json:"archived"`
}

func newRoleView(r Role) roleView {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleView{ID: r.ID, BranchID: r.BranchID, Name: r.Name, Permissions: perms, Archived: r.Archived()}
}

type createRoleRequest struct {
	BranchID    int64    `json:"branchId" validate:"required,gt=0"`
	Name        string   `json:"name" validate:"required,max=80"`
	Permissions []string `json:"permissions" validate:"dive,max=80"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,max=80"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branchId"), 10, 64)
	if err != nil || branchID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "branchId is required")
		return
	}
	roles, err := h.service.ListRoles(r.Context(), branchID)
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleView, 0, len(roles))
	for _, role := range roles {
		out = append(out, newRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), CreateInput{
		BranchID:    req.BranchID,
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.respondError(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newRoleView(role))
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req permissionsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdatePermissions(r.Context(), actorID(r), id, req.Permissions)
	if err != nil {
		h.respondError(w, r, "update role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRoleView(role))
}

func (h *Handler) archiveRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.ArchiveRole(r.Context(), actorID(r), id)
	if err != nil {
		h.respondError(w, r, "archive role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newRoleView(role))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		observability.CaptureError(r.Context(), err)
		httpx.RespondError(w, err)
	}
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	principal, _ := shared.PrincipalFromContext(r.Context())
	return principal.UserID
}
