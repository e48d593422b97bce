package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/shared"
)

// Guard authenticates requests carrying an access token and attaches the
// caller's principal to the request context.
type Guard struct {
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(issuer *TokenIssuer, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{issuer: issuer, logger: logger}
}

// Authenticate rejects requests without a valid access token.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessTokenFrom(r)
		if raw == "" {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		claims, err := g.issuer.VerifyAccess(raw)
		if err != nil {
			g.logger.Debug("access token rejected", slog.String("kind", string(KindOf(err))))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		userID, _ := claims.UserID()
		ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{
			UserID:   userID,
			Username: claims.Username,
			Role:     claims.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessTokenFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
