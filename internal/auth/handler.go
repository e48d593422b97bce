package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/platform/httpx"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
)

// HandlerConfig configures Handler.
type HandlerConfig struct {
	Cookies CookieConfig
	// LoginRatePerMinute caps login attempts per client IP ahead of the
	// lockout policy. Zero disables the cap.
	LoginRatePerMinute int
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	perms     *rbac.Service
	guard     *Guard
	validator *validator.Validate
	cfg       HandlerConfig
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, perms *rbac.Service, guard *Guard, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		perms:     perms,
		guard:     guard,
		validator: validator.New(),
		cfg:       cfg,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	if h.cfg.LoginRatePerMinute > 0 {
		r.With(httprate.LimitByIP(h.cfg.LoginRatePerMinute, time.Minute)).Post("/login", h.handleLogin)
	} else {
		r.Post("/login", h.handleLogin)
	}
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.With(h.guard.Authenticate).Get("/me", h.handleMe)
}

type registerRequest struct {
	Username string `json:"username" validate:"omitempty,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"omitempty,max=120"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r loginRequest) identity() string {
	for _, v := range []string{r.Login, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	RoleID   *int64 `json:"roleId,omitempty"`
}

func newUserView(u User) userView {
	return userView{
		ID:       u.ID,
		Username: u.DisplayUsername(),
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		RoleID:   u.RoleID,
	}
}

type sessionResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        userView  `json:"user"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondValidation(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, clientMetadata(r))
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "account already exists")
			return
		}
		h.respondInternal(w, r, "register", err)
		return
	}
	h.respondSession(w, http.StatusCreated, session)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil || req.identity() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
		return
	}

	session, err := h.service.Login(r.Context(), LoginInput{Login: req.identity(), Password: req.Password}, clientMetadata(r))
	if err != nil {
		if IsCredentialFailure(err) {
			h.logger.Info("login rejected", slog.String("kind", string(KindOf(err))))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		h.respondInternal(w, r, "login", err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		raw = cookie.Value
	}
	h.service.Logout(r.Context(), raw)
	h.cfg.Cookies.clear(w)
	httpx.JSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		httpx.JSON(w, http.StatusOK, okResponse{OK: false})
		return
	}

	session, err := h.service.Refresh(r.Context(), cookie.Value, clientMetadata(r))
	if err != nil {
		if IsSessionFailure(err) || IsCredentialFailure(err) {
			h.logger.Info("refresh rejected", slog.String("kind", string(KindOf(err))))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.respondInternal(w, r, "refresh", err)
		return
	}
	h.respondSession(w, http.StatusOK, session)
}

type meResponse struct {
	User        userView `json:"user"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.User(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		h.respondInternal(w, r, "me", err)
		return
	}
	_, effective, err := h.perms.EffectivePermissions(r.Context(), principal.UserID)
	if err != nil {
		h.respondInternal(w, r, "me permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{User: newUserView(user), Permissions: effective.Slice()})
}

func (h *Handler) respondSession(w http.ResponseWriter, status int, session Session) {
	h.cfg.Cookies.setTokens(w, session.Tokens)
	httpx.JSON(w, status, sessionResponse{
		AccessToken: session.Tokens.AccessToken,
		ExpiresAt:   session.Tokens.AccessExpiresAt,
		User:        newUserView(session.User),
	})
}

func (h *Handler) respondValidation(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, strings.ToLower(fe.Field())+": "+fe.Tag())
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
		return
	}
	httpx.RespondError(w, httpx.ErrValidation)
}

func (h *Handler) respondInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	observability.CaptureError(r.Context(), err)
	httpx.RespondError(w, err)
}

func clientMetadata(r *http.Request) ClientMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientMetadata{IP: ip, UserAgent: r.UserAgent()}
}
