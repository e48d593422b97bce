package rbac

import (
	"sort"
	"time"
)

// Coarse roles stored on the user record.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleCashier = "CASHIER"
	RoleStaff   = "STAFF"
)

// PermAll grants every permission when present in an effective set.
const PermAll = "all"

// ValidCoarseRole reports whether role is one of the known coarse roles.
func ValidCoarseRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCashier, RoleStaff:
		return true
	}
	return false
}

// Role is a branch-scoped permission bundle. Permissions are opaque strings
// interpreted only by the Resolver.
type Role struct {
	ID          int64
	BranchID    int64
	Name        string
	Permissions []string
	ArchivedAt  *time.Time
}

// Archived reports whether the role was soft-deleted.
func (r Role) Archived() bool {
	return r.ArchivedAt != nil
}

// Grant is what the role store knows about a user at request time.
type Grant struct {
	UserID      int64
	Role        string
	RoleID      *int64
	Permissions []string
}

// Set is a deduplicated collection of permission names.
type Set map[string]struct{}

// NewSet builds a Set from the given names.
func NewSet(perms ...string) Set {
	set := make(Set, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether perm is present.
func (s Set) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Slice returns the permissions sorted by name.
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether every member of other is present in s.
func (s Set) Contains(other Set) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
