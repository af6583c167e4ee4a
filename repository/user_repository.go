package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-bank-gate/logger"
	"go-bank-gate/model"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// IUserRepository defines the identity lookups the token authority relies on.
type IUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// UserRepository implements IUserRepository on Postgres.
type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

const selectUserColumns = `SELECT id, email, password_hash, first_name, last_name, is_active, last_login_at, created_at FROM users`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName,
		&user.IsActive, &lastLogin, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}

// FindByEmail retrieves a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	log := logger.Log.WithField("email", email)
	log.Debug("Executing query to get user by email")

	user, err := scanUser(r.DB.QueryRowContext(ctx, selectUserColumns+` WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		log.WithError(err).Error("Failed to execute get user by email query")
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	log := logger.Log.WithField("user_id", id)
	log.Debug("Executing query to get user by ID")

	user, err := scanUser(r.DB.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		log.WithError(err).Error("Failed to execute get user by ID query")
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

// UpdateLastLogin stamps the user's last successful login with the database clock.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	log := logger.Log.WithField("user_id", id)
	log.Debug("Executing query to update last login")

	res, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		log.WithError(err).Error("Failed to execute update last login query")
		return fmt.Errorf("update last login: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}
