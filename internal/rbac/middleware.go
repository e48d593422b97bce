package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			allowed, err := m.Service.Allowed(r.Context(), principal.UserID, normalized...)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					httpx.RespondError(w, httpx.ErrUnauthorized)
					return
				}
				m.logger().Error("rbac require any", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if !allowed {
				m.logger().Info("rbac forbidden",
					slog.Int64("user_id", principal.UserID),
					slog.String("path", r.URL.Path),
					slog.String("required", strings.Join(normalized, ",")))
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalize(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
