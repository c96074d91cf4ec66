package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/adeilh/taskgate/auth"
)

// UserRepository persists auth.User records inside PostgreSQL. It satisfies
// auth.UserStore.
type UserRepository struct {
	db *sql.DB
}

var _ auth.UserStore = (*UserRepository)(nil)

// NewUserRepository wraps an existing *sql.DB connection.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUserColumns = `SELECT id, email, password_hash, roles, first_name, last_name, country, created_at, updated_at FROM users`

func (r *UserRepository) CreateUser(ctx context.Context, user auth.User) error {
	const query = `INSERT INTO users (id, email, password_hash, roles, first_name, last_name, country, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	hashJSON, err := json.Marshal(user.PasswordHash)
	if err != nil {
		return fmt.Errorf("postgres: encode password hash: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		hashJSON,
		user.Roles.String(),
		user.FirstName,
		user.LastName,
		user.Country,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return translateUserError(err)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (auth.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE email = $1`, email))
}

// UpdateRoles replaces the stored roles of the user with the given email.
func (r *UserRepository) UpdateRoles(ctx context.Context, email string, roles auth.RoleSet) error {
	const query = `UPDATE users SET roles = $2, updated_at = $3 WHERE email = $1`
	res, err := r.db.ExecContext(ctx, query, email, roles.String(), time.Now().UTC())
	if err != nil {
		return translateUserError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (auth.User, error) {
	var (
		hashJSON []byte
		roles    string
		user     auth.User
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&hashJSON,
		&roles,
		&user.FirstName,
		&user.LastName,
		&user.Country,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrUserNotFound
		}
		return auth.User{}, translateUserError(err)
	}
	if err := json.Unmarshal(hashJSON, &user.PasswordHash); err != nil {
		return auth.User{}, fmt.Errorf("postgres: decode password hash: %w", err)
	}
	user.Roles = auth.ParseRoles(roles)
	return user, nil
}

func translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return auth.ErrUserEmailInUse
		case "22P02":
			return auth.ErrUserNotFound
		}
	}
	return err
}
