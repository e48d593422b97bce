package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusapos/nusapos/internal/platform/db"
	"github.com/nusapos/nusapos/internal/shared"
)

// TokenStore persists refresh token records and resolves their owners.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error
	// ActiveRefreshTokens returns unrevoked records for userID whose
	// fingerprint matches or is empty. Inside WithTx the rows are locked.
	ActiveRefreshTokens(ctx context.Context, userID int64, fingerprint string) ([]RefreshTokenRecord, error)
	// RevokeRefreshToken marks an unrevoked record revoked and reports
	// whether this call performed the transition.
	RevokeRefreshToken(ctx context.Context, id int64, at time.Time) (bool, error)
	FindUserByID(ctx context.Context, id int64) (User, error)
}

// TxTokenStore is a TokenStore that can run a unit of work atomically.
type TxTokenStore interface {
	TokenStore
	WithTx(ctx context.Context, fn func(context.Context, TokenStore) error) error
}

// Repository defines persistence operations for the auth module.
type Repository interface {
	TxTokenStore
	FindUserByLogin(ctx context.Context, login string) (User, error)
	CreateUser(ctx context.Context, user *User) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	pgQueries
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, pgQueries: pgQueries{q: pool}}
}

// WithTx runs fn in a ReadCommitted transaction. Row locks taken by
// ActiveRefreshTokens make a concurrent rotation wait and then observe the
// committed revocation.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TokenStore) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, pgQueries{q: tx, forUpdate: true})
	})
}

const userColumns = `id, username, email, name, password_hash, role, role_id, allow_login, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.RoleID, &u.AllowLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// FindUserByLogin fetches a user by username or email, case-insensitively.
func (r *PGRepository) FindUserByLogin(ctx context.Context, login string) (User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1 OR lower(username) = $1 LIMIT 1`, login))
}

// CreateUser inserts user and fills its generated fields. A duplicate email
// or username yields shared.ErrConflict.
func (r *PGRepository) CreateUser(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, name, password_hash, role, role_id, allow_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.Name, user.PasswordHash, user.Role, user.RoleID, user.AllowLogin,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

type pgQueries struct {
	q         querier
	forUpdate bool
}

func (p pgQueries) FindUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(p.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p pgQueries) CreateRefreshToken(ctx context.Context, rec *RefreshTokenRecord) error {
	return p.q.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, fingerprint, ip, user_agent, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		rec.UserID, rec.TokenHash, rec.Fingerprint, rec.IP, rec.UserAgent, rec.ExpiresAt.UTC(), rec.LastUsedAt.UTC(),
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (p pgQueries) ActiveRefreshTokens(ctx context.Context, userID int64, fingerprint string) ([]RefreshTokenRecord, error) {
	sql := `
		SELECT id, user_id, token_hash, fingerprint, ip, user_agent, expires_at, revoked, last_used_at, created_at
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = false AND (fingerprint = $2 OR fingerprint = '')
		ORDER BY id DESC`
	if p.forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, err := p.q.Query(ctx, sql, userID, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RefreshTokenRecord
	for rows.Next() {
		var rec RefreshTokenRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.Fingerprint, &rec.IP, &rec.UserAgent,
			&rec.ExpiresAt, &rec.Revoked, &rec.LastUsedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p pgQueries) RevokeRefreshToken(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := p.q.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true, last_used_at = $2 WHERE id = $1 AND revoked = false`,
		id, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

var _ Repository = (*PGRepository)(nil)
