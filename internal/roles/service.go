package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nusapos/nusapos/internal/rbac"
	"github.com/nusapos/nusapos/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context, branchID int64) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, role *Role) error
	UpdatePermissions(ctx context.Context, id int64, perms []string) (Role, error)
	Archive(ctx context.Context, id int64, at time.Time) (Role, error)
}

// AuditRecorder persists administrative changes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role business logic.
type Service struct {
	repo     RepositoryPort
	resolver *rbac.Resolver
	audit    AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, resolver *rbac.Resolver, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, audit: audit, logger: logger, now: time.Now}
}

// ListRoles returns the roles of a branch.
func (s *Service) ListRoles(ctx context.Context, branchID int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, branchID)
}

// CreateRole validates and stores a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in CreateInput) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.BranchID <= 0 {
		return Role{}, fmt.Errorf("%w: branch and name are required", ErrInvalidRole)
	}
	perms, err := s.cleanPermissions(in.Permissions)
	if err != nil {
		return Role{}, err
	}
	role := Role{BranchID: in.BranchID, Name: name, Permissions: perms}
	if err := s.repo.CreateRole(ctx, &role); err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.create", role)
	return role, nil
}

// UpdatePermissions replaces a role's permissions. Users holding the role
// see the change on their next request.
func (s *Service) UpdatePermissions(ctx context.Context, actorID, id int64, perms []string) (Role, error) {
	cleaned, err := s.cleanPermissions(perms)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdatePermissions(ctx, id, cleaned)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.update_permissions", role)
	return role, nil
}

// ArchiveRole soft-deletes a role. Users still assigned keep its
// permissions until reassigned.
func (s *Service) ArchiveRole(ctx context.Context, actorID, id int64) (Role, error) {
	role, err := s.repo.Archive(ctx, id, s.now())
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role.archive", role)
	return role, nil
}

func (s *Service) cleanPermissions(perms []string) ([]string, error) {
	seen := make(map[string]struct{}, len(perms))
	var unknown []string
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if !s.resolver.Known(p) {
			unknown = append(unknown, p)
			continue
		}
		out = append(out, p)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(unknown, ", "))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, role Role) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(role.ID, 10),
		Meta:     map[string]any{"branch_id": role.BranchID, "permissions": role.Permissions},
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit role change", slog.String("action", action), slog.Any("error", err))
	}
}
