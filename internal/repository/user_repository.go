package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-attendance-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// Accounts outside these roles (students, parents) share the users table but never sign in here.
var staffRoles = []string{
	string(models.RoleSuperAdmin),
	string(models.RoleAdmin),
	string(models.RoleTeacher),
	string(models.RoleSecurity),
}

// UserRepository reads staff accounts used for login.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the staff account with the given email, compared case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findStaff(ctx, "LOWER(email) = LOWER(?)", email)
}

// FindByID returns the staff account with the given id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findStaff(ctx, "id = ?", id)
}

// findStaff passes sql.ErrNoRows through unwrapped.
func (r *UserRepository) findStaff(ctx context.Context, predicate string, arg interface{}) (*models.User, error) {
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM users WHERE %s AND role IN (?) LIMIT 1`, userColumns, predicate),
		arg, staffRoles,
	)
	if err != nil {
		return nil, fmt.Errorf("build staff query: %w", err)
	}
	var user models.User
	if err := r.db.GetContext(ctx, &user, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find staff user: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin stamps the last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
