package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/shared"
)

// PermissionsHandler exposes the permission catalog to the role editor.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listPermissions)
	})
}

type domainView struct {
	Name        string   `json:"name"`
	Wildcard    string   `json:"wildcard"`
	Permissions []string `json:"permissions"`
}

type catalogView struct {
	Domains []domainView `json:"domains"`
	Bundles []string     `json:"bundles"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Resolver().Catalog()
	view := catalogView{Domains: make([]domainView, 0, len(catalog))}
	for _, d := range catalog {
		view.Domains = append(view.Domains, domainView{Name: d.Name, Wildcard: d.Name + ".*", Permissions: d.Permissions})
	}
	for _, b := range DefaultBundles() {
		view.Bundles = append(view.Bundles, b.Pattern)
	}
	httpx.JSON(w, http.StatusOK, view)
}
