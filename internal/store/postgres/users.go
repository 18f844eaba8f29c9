package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/platform/db"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

const userColumns = `id, email, name, password_hash, role, branch_id, store_id, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.BranchID, &u.StoreID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// FindByEmail implements auth.Repository.
func (s *Store) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return auth.User{}, notFound(err, "user", email)
	}
	return u, nil
}

// FindByID implements auth.Repository.
func (s *Store) FindByID(ctx context.Context, id int64) (auth.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return auth.User{}, notFound(err, "user", id)
	}
	return u, nil
}

// CreateUser inserts an account; emails are stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	out, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, branch_id, store_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.PasswordHash, u.Role, u.BranchID, u.StoreID, u.IsActive))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return auth.User{}, fmt.Errorf("%w: user %s already exists", shared.ErrConflict, u.Email)
		}
		return auth.User{}, err
	}
	return out, nil
}

// CreateSession implements auth.Repository.
func (s *Store) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, userID, expiresAt, ip, ua)
	return err
}

// DeleteSession implements auth.Repository.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

var _ auth.Repository = (*Store)(nil)
