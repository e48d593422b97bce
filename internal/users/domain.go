package users

import (
	"errors"
	"time"
)

// User is the administrative view of an account. Password hashes never
// leave the auth package.
type User struct {
	ID         int64
	Username   *string
	Email      string
	Name       string
	Role       string
	RoleID     *int64
	AllowLogin *bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpdateInput carries optional changes to a user's access. Nil fields are
// left untouched. ClearRoleID detaches the fine-grained role.
type UpdateInput struct {
	Role        *string
	RoleID      *int64
	ClearRoleID bool
	AllowLogin  *bool
}

// Empty reports whether the update changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Role == nil && in.RoleID == nil && !in.ClearRoleID && in.AllowLogin == nil
}

var (
	// ErrInvalidUpdate is returned for malformed access changes.
	ErrInvalidUpdate = errors.New("users: invalid update")
	// ErrSelfLockout is returned when an actor would disable or demote themself.
	ErrSelfLockout = errors.New("users: cannot revoke own access")
)
