package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Store reads role assignments. Implementations must not cache: permission
// revocation has to be visible on the next request.
type Store interface {
	GrantForUser(ctx context.Context, userID int64) (Grant, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GrantForUser loads the coarse role and the fine-grained role permissions of
// a user. Archived roles keep granting their permissions to users still
// assigned to them.
func (s *PGStore) GrantForUser(ctx context.Context, userID int64) (Grant, error) {
	const query = `SELECT u.role, u.role_id, COALESCE(r.permissions, '{}'::text[])
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`
	grant := Grant{UserID: userID}
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&grant.Role, &grant.RoleID, &grant.Permissions); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, err
	}
	return grant, nil
}

var _ Store = (*PGStore)(nil)
