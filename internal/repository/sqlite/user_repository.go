package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-auth-service/internal/model"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user model.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, password_hash, role, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert user: %w", model.ErrUserAlreadyExists)
	}
	if err != nil {
		return storeErr("insert user", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, is_active, created_at, updated_at
FROM users
WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, name, password_hash, role, is_active, created_at, updated_at
FROM users
WHERE email = ? COLLATE NOCASE`,
		strings.TrimSpace(email),
	)
	return scanUser(row)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(updatedAt), id)
	if err != nil {
		return storeErr("update password", err)
	}
	return requireRow(res)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(updatedAt), id)
	if err != nil {
		return storeErr("set user active", err)
	}
	return requireRow(res)
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func requireRow(res sql.Result) error {
	n, err := rowsAffected("update user", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (model.User, error) {
	var user model.User
	var createdAt, updatedAt string
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrUserNotFound
		}
		return model.User{}, storeErr("scan user", err)
	}

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.User{}, err
	}
	return user, nil
}
