package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit))
		r.Patch("/{id}", h.updateUser)
	})
}

type userView struct {
	ID         int64     `json:"id"`
	Username   *string   `json:"username,omitempty"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	RoleID     *int64    `json:"roleId,omitempty"`
	AllowLogin bool      `json:"allowLogin"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newUserView(u User) userView {
	return userView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		RoleID:     u.RoleID,
		AllowLogin: u.AllowLogin == nil || *u.AllowLogin,
		CreatedAt:  u.CreatedAt,
	}
}

type updateRequest struct {
	Role        *string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER CASHIER STAFF admin manager cashier staff"`
	RoleID      *int64  `json:"roleId" validate:"omitempty,gt=0"`
	ClearRoleID bool    `json:"clearRoleId"`
	AllowLogin  *bool   `json:"allowLogin"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	result, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userView, 0, len(result.Users))
	for _, u := range result.Users {
		out = append(out, newUserView(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out, "pagination": result.Pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserView(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	user, err := h.service.UpdateAccess(r.Context(), principal.UserID, id, UpdateInput{
		Role:        req.Role,
		RoleID:      req.RoleID,
		ClearRoleID: req.ClearRoleID,
		AllowLogin:  req.AllowLogin,
	})
	if err != nil {
		h.respondError(w, r, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserView(user))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidUpdate):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSelfLockout):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		observability.CaptureError(r.Context(), err)
		httpx.RespondError(w, err)
	}
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}
