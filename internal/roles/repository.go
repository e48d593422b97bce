package roles

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusapos/nusapos/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, branch_id, name, permissions, archived_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.BranchID, &role.Name, &role.Permissions, &role.ArchivedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns the roles of a branch, archived ones last.
func (r *Repository) ListRoles(ctx context.Context, branchID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles
		WHERE branch_id = $1 ORDER BY archived_at NULLS FIRST, name`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// CreateRole inserts role and fills its id.
func (r *Repository) CreateRole(ctx context.Context, role *Role) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (branch_id, name, permissions) VALUES ($1, $2, $3) RETURNING id`,
		role.BranchID, role.Name, role.Permissions,
	).Scan(&role.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return shared.ErrConflict
			case "23503":
				return shared.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// UpdatePermissions replaces the permission list of a role.
func (r *Repository) UpdatePermissions(ctx context.Context, id int64, perms []string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles SET permissions = $2 WHERE id = $1 RETURNING `+roleColumns, id, perms))
}

// Archive soft-deletes a role. Archiving twice keeps the first timestamp.
func (r *Repository) Archive(ctx context.Context, id int64, at time.Time) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx,
		`UPDATE roles SET archived_at = COALESCE(archived_at, $2) WHERE id = $1 RETURNING `+roleColumns, id, at.UTC()))
}
