package users_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
	"github.com/nusapos/nusapos/internal/users"
	_ "github.com/nusapos/nusapos/testing"
)

type memoryRepo struct {
	mu    sync.Mutex
	users map[int64]users.User
	roles map[int64]bool
}

func newMemoryRepo(n int) *memoryRepo {
	repo := &memoryRepo{users: make(map[int64]users.User), roles: map[int64]bool{7: true}}
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for id := int64(1); id <= int64(n); id++ {
		role := rbac.RoleCashier
		if id == 1 {
			role = rbac.RoleAdmin
		}
		repo.users[id] = users.User{ID: id, Email: "user" + strings.Repeat("x", int(id)) + "@example.com", Role: role, CreatedAt: created}
	}
	return repo
}

func (m *memoryRepo) ListUsers(_ context.Context, limit, offset int) ([]users.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []users.User
	for i := offset; i < len(ids) && i < offset+limit; i++ {
		out = append(out, m.users[ids[i]])
	}
	return out, len(ids), nil
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) UpdateAccess(_ context.Context, id int64, in users.UpdateInput) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	if in.RoleID != nil && !m.roles[*in.RoleID] {
		return users.User{}, shared.ErrNotFound
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	switch {
	case in.ClearRoleID:
		u.RoleID = nil
	case in.RoleID != nil:
		u.RoleID = in.RoleID
	}
	if in.AllowLogin != nil {
		u.AllowLogin = in.AllowLogin
	}
	m.users[id] = u
	return u, nil
}

type auditSpy struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type repoGrants struct{ repo *memoryRepo }

func (g repoGrants) GrantForUser(ctx context.Context, userID int64) (rbac.Grant, error) {
	u, err := g.repo.GetUser(ctx, userID)
	if err != nil {
		return rbac.Grant{}, rbac.ErrNotFound
	}
	var perms []string
	if u.RoleID != nil {
		perms = []string{rbac.BundleUserManagement}
	}
	return rbac.Grant{UserID: userID, Role: u.Role, RoleID: u.RoleID, Permissions: perms}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func TestListUsersPaginates(t *testing.T) {
	svc := users.NewService(newMemoryRepo(45), nil, quietLogger())

	page, err := svc.ListUsers(context.Background(), 3, 20)
	require.NoError(t, err)
	require.Len(t, page.Users, 5)
	require.Equal(t, int64(41), page.Users[0].ID)
	require.Equal(t, shared.Pagination{Page: 3, PerPage: 20, Total: 45, TotalPages: 3}, page.Pagination)

	page, err = svc.ListUsers(context.Background(), 0, 1000)
	require.NoError(t, err)
	require.Equal(t, shared.MaxPerPage, page.Pagination.PerPage)
	require.Len(t, page.Users, 45)
}

func TestUpdateAccessValidates(t *testing.T) {
	svc := users.NewService(newMemoryRepo(3), nil, quietLogger())
	ctx := context.Background()

	_, err := svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{})
	require.ErrorIs(t, err, users.ErrInvalidUpdate)

	_, err = svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{Role: ptr("OWNER")})
	require.ErrorIs(t, err, users.ErrInvalidUpdate)

	_, err = svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{RoleID: ptr(int64(7)), ClearRoleID: true})
	require.ErrorIs(t, err, users.ErrInvalidUpdate)

	_, err = svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{RoleID: ptr(int64(99))})
	require.ErrorIs(t, err, shared.ErrNotFound)

	u, err := svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{Role: ptr(" manager "), RoleID: ptr(int64(7))})
	require.NoError(t, err)
	require.Equal(t, rbac.RoleManager, u.Role)
	require.Equal(t, int64(7), *u.RoleID)
}

func TestUpdateAccessRefusesSelfLockout(t *testing.T) {
	audit := &auditSpy{}
	svc := users.NewService(newMemoryRepo(3), audit, quietLogger())
	ctx := context.Background()

	_, err := svc.UpdateAccess(ctx, 1, 1, users.UpdateInput{AllowLogin: ptr(false)})
	require.ErrorIs(t, err, users.ErrSelfLockout)

	_, err = svc.UpdateAccess(ctx, 1, 1, users.UpdateInput{Role: ptr(rbac.RoleStaff)})
	require.ErrorIs(t, err, users.ErrSelfLockout)

	u, err := svc.UpdateAccess(ctx, 1, 2, users.UpdateInput{AllowLogin: ptr(false)})
	require.NoError(t, err)
	require.False(t, *u.AllowLogin)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "user.update_access", audit.logs[0].Action)
	require.Equal(t, "2", audit.logs[0].EntityID)
	require.Equal(t, false, audit.logs[0].Meta["allow_login"])
}

func newRouter(repo *memoryRepo) http.Handler {
	svc := users.NewService(repo, nil, quietLogger())
	mw := rbac.Middleware{Service: rbac.NewService(repoGrants{repo: repo}, nil), Logger: quietLogger()}
	r := chi.NewRouter()
	r.Route("/users", users.NewHandler(quietLogger(), svc, mw).MountRoutes)
	return r
}

func serve(router http.Handler, userID int64, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: userID}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerListAndPatch(t *testing.T) {
	repo := newMemoryRepo(3)
	router := newRouter(repo)

	rr := serve(router, 1, http.MethodGet, "/users?page=1&perPage=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Users []struct {
			ID         int64 `json:"id"`
			AllowLogin bool  `json:"allowLogin"`
		} `json:"users"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Users, 2)
	require.True(t, list.Users[0].AllowLogin)
	require.Equal(t, 2, list.Pagination.TotalPages)
	require.NotContains(t, rr.Body.String(), "password")

	rr = serve(router, 1, http.MethodPatch, "/users/3", `{"allowLogin":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"allowLogin":false`)

	rr = serve(router, 1, http.MethodPatch, "/users/3", `{"role":"OWNER"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, 1, http.MethodPatch, "/users/1", `{"allowLogin":false}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(router, 1, http.MethodGet, "/users/99", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerEnforcesPermissions(t *testing.T) {
	repo := newMemoryRepo(3)
	router := newRouter(repo)

	rr := serve(router, 2, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	_, err := users.NewService(repo, nil, quietLogger()).UpdateAccess(context.Background(), 1, 2, users.UpdateInput{RoleID: ptr(int64(7))})
	require.NoError(t, err)

	rr = serve(router, 2, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = serve(router, 2, http.MethodPatch, "/users/3", `{"allowLogin":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
}
