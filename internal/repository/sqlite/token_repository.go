package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

type TokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTokenRepository(db *sql.DB, now func() time.Time) *TokenRepository {
	if now == nil {
		now = time.Now
	}
	return &TokenRepository{db: db, now: now}
}

func (r *TokenRepository) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at)
VALUES (?, ?, ?, ?, 0, ?)`,
		id, userID, tokenHash, formatTime(expiresAt), formatTime(r.now()),
	)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("insert refresh token: %w", model.ErrInvalidInput)
	}
	if err != nil {
		return "", storeErr("insert refresh token", err)
	}
	return id, nil
}

func (r *TokenRepository) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	var expiresAt, createdAt string
	err := r.db.QueryRowContext(ctx, `
SELECT id, user_id, token_hash, expires_at, is_revoked, created_at
FROM refresh_tokens
WHERE token_hash = ? AND is_revoked = 0 AND expires_at > ?`,
		tokenHash, formatTime(r.now()),
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.IsRevoked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, storeErr("find refresh token", err)
	}

	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return model.RefreshToken{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.RefreshToken{}, err
	}
	return t, nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = 1 WHERE id = ? AND is_revoked = 0`, id)
	if err != nil {
		return false, storeErr("revoke refresh token", err)
	}
	n, err := rowsAffected("revoke refresh token", res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked = 1 WHERE user_id = ? AND is_revoked = 0`, userID)
	if err != nil {
		return 0, storeErr("revoke all refresh tokens", err)
	}
	return rowsAffected("revoke all refresh tokens", res)
}

func (r *TokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, formatTime(before))
	if err != nil {
		return 0, storeErr("purge expired tokens", err)
	}
	return rowsAffected("purge expired tokens", res)
}
