package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UpdateAccess(ctx context.Context, id int64, in UpdateInput) (User, error)
}

// AuditRecorder persists administrative changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Page is one listing page.
type Page struct {
	Users      []User
	Pagination shared.Pagination
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// ListUsers returns the requested page.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) (Page, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p.PerPage, p.Offset())
	if err != nil {
		return Page{}, err
	}
	return Page{Users: users, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// UpdateAccess changes the coarse role, fine-grained role or login flag of a
// user. Disabling login takes effect at the user's next refresh; access
// tokens already issued run out on their own.
func (s *Service) UpdateAccess(ctx context.Context, actorID, id int64, in UpdateInput) (User, error) {
	if in.Empty() {
		return User{}, fmt.Errorf("%w: nothing to change", ErrInvalidUpdate)
	}
	if in.Role != nil {
		role := strings.ToUpper(strings.TrimSpace(*in.Role))
		if !rbac.ValidCoarseRole(role) {
			return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidUpdate, *in.Role)
		}
		in.Role = &role
	}
	if in.RoleID != nil && *in.RoleID <= 0 {
		return User{}, fmt.Errorf("%w: invalid role id", ErrInvalidUpdate)
	}
	if in.RoleID != nil && in.ClearRoleID {
		return User{}, fmt.Errorf("%w: roleId and clearRoleId are exclusive", ErrInvalidUpdate)
	}
	if actorID == id {
		if in.AllowLogin != nil && !*in.AllowLogin {
			return User{}, ErrSelfLockout
		}
		if in.Role != nil {
			current, err := s.repo.GetUser(ctx, id)
			if err != nil {
				return User{}, err
			}
			if current.Role == rbac.RoleAdmin && *in.Role != rbac.RoleAdmin {
				return User{}, ErrSelfLockout
			}
		}
	}

	user, err := s.repo.UpdateAccess(ctx, id, in)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actorID, user, in)
	return user, nil
}

func (s *Service) record(ctx context.Context, actorID int64, user User, in UpdateInput) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"role": user.Role}
	if user.RoleID != nil {
		meta["role_id"] = *user.RoleID
	}
	if in.AllowLogin != nil {
		meta["allow_login"] = *in.AllowLogin
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "user.update_access",
		Entity:   "user",
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit user change", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
}
