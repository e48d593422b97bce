package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nusapos/nusapos/internal/app"
	"github.com/nusapos/nusapos/internal/auth"
	"github.com/nusapos/nusapos/internal/observability"
	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/roles"
	"github.com/nusapos/nusapos/internal/shared"
	"github.com/nusapos/nusapos/internal/users"
)

type staticGrants map[int64]rbac.Grant

func (s staticGrants) GrantForUser(_ context.Context, userID int64) (rbac.Grant, error) {
	g, ok := s[userID]
	if !ok {
		return rbac.Grant{}, rbac.ErrNotFound
	}
	return g, nil
}

type routerFixture struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	metrics *observability.Metrics
	ready   error
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{AccessSecret: "a-secret", RefreshSecret: "r-secret"}, nil)
	require.NoError(t, err)

	grants := staticGrants{
		1: {UserID: 1, Role: rbac.RoleCashier, Permissions: []string{shared.PermPOSSellAdd}},
		2: {UserID: 2, Role: rbac.RoleManager, Permissions: []string{shared.PermRolesView}},
	}
	rbacService := rbac.NewService(grants, rbac.NewDefaultResolver())
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	guard := auth.NewGuard(issuer, logger)
	metrics := observability.NewMetrics()

	f := &routerFixture{issuer: issuer, metrics: metrics}
	f.handler = app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             &app.Config{AppEnv: "development", AppRequestTimeout: 5 * time.Second},
		AuthHandler:        auth.NewHandler(logger, nil, rbacService, guard, auth.HandlerConfig{}),
		Guard:              guard,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(nil, rbacService.Resolver(), nil, logger), rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, users.NewService(nil, nil, logger), rbacMiddleware),
		Metrics:            metrics,
		Ready:              func(*http.Request) error { return f.ready },
	})
	return f
}

func (f *routerFixture) get(t *testing.T, path string, userID int64, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != 0 {
		pair, err := f.issuer.Issue(auth.User{ID: userID, Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReadiness(t *testing.T) {
	f := newRouterFixture(t)

	rr := f.get(t, "/healthz", 0, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	require.Equal(t, http.StatusOK, f.get(t, "/readyz", 0, "").Code)
	f.ready = errors.New("postgres down")
	require.Equal(t, http.StatusServiceUnavailable, f.get(t, "/readyz", 0, "").Code)
}

func TestPermissionsRouteIsGuarded(t *testing.T) {
	f := newRouterFixture(t)

	require.Equal(t, http.StatusUnauthorized, f.get(t, "/permissions", 0, "").Code)
	require.Equal(t, http.StatusForbidden, f.get(t, "/permissions", 1, rbac.RoleCashier).Code)
	require.Equal(t, http.StatusOK, f.get(t, "/permissions", 2, rbac.RoleManager).Code)
}

// Denials happen before the handlers touch their repositories, which are nil here.
func TestAdminRoutesAreGuarded(t *testing.T) {
	f := newRouterFixture(t)

	require.Equal(t, http.StatusUnauthorized, f.get(t, "/roles?branchId=1", 0, "").Code)
	require.Equal(t, http.StatusForbidden, f.get(t, "/roles?branchId=1", 1, rbac.RoleCashier).Code)
	require.Equal(t, http.StatusUnauthorized, f.get(t, "/users", 0, "").Code)
	require.Equal(t, http.StatusForbidden, f.get(t, "/users", 2, rbac.RoleManager).Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	f := newRouterFixture(t)
	f.get(t, "/healthz", 0, "")

	rr := f.get(t, "/metrics", 0, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `nusapos_http_requests_total{code="200",route="/healthz"} 1`)
}
