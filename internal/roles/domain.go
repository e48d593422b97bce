package roles

import (
	"errors"

	"github.com/nusapos/nusapos/internal/rbac"
)

// Role is the branch-scoped permission bundle managed here.
type Role = rbac.Role

// ErrUnknownPermission is returned when a role would carry a permission
// name the resolver does not recognise.
var ErrUnknownPermission = errors.New("roles: unknown permission")

// ErrInvalidRole is returned for malformed role input.
var ErrInvalidRole = errors.New("roles: invalid role")

// CreateInput carries the fields of a new role.
type CreateInput struct {
	BranchID    int64
	Name        string
	Permissions []string
}
