package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nusapos/nusapos/internal/auth"
	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/roles"
	"github.com/nusapos/nusapos/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	Guard              *auth.Guard
	PermissionsHandler *rbac.PermissionsHandler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	Metrics            *observability.Metrics
	// Ready reports whether backing stores are reachable.
	Ready func(r *http.Request) error
}

// NewRouter constructs the chi.Router with NusaPOS defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	guarded := func(mount func(chi.Router)) func(chi.Router) {
		return func(r chi.Router) {
			r.Use(params.Guard.Authenticate)
			mount(r)
		}
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", guarded(params.PermissionsHandler.MountRoutes))
	}
	if params.RolesHandler != nil {
		r.Route("/roles", guarded(params.RolesHandler.MountRoutes))
	}
	if params.UsersHandler != nil {
		r.Route("/users", guarded(params.UsersHandler.MountRoutes))
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
