package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-service/internal/model"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, is_revoked, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)`,
		id, userID, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if isUniqueViolation(err) {
		return "", fmt.Errorf("store refresh token: %w", model.ErrInvalidInput)
	}
	if err != nil {
		return "", storeErr("store refresh token", err)
	}
	return id, nil
}

func (r *TokenRepository) FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, user_id::text, token_hash, expires_at, is_revoked, created_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND is_revoked = false AND expires_at > now()`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, storeErr("find refresh token", err)
	}
	return t, nil
}

// Revoke only transitions an active row; the affected-row count decides the winner
// when the same token is presented concurrently.
func (r *TokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = true WHERE id = $1 AND is_revoked = false`, id)
	if err != nil {
		return false, storeErr("revoke refresh token", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	if !validID(userID) {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1 AND is_revoked = false`, userID)
	if err != nil {
		return 0, storeErr("revoke all refresh tokens", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, storeErr("purge expired tokens", err)
	}
	return tag.RowsAffected(), nil
}
