package service

import (
	"context"
	"time"

	"go-auth-service/internal/model"
)

// UserStore persists identity records. Lookups return model.ErrUserNotFound when no
// row matches; Create returns model.ErrUserAlreadyExists on a duplicate email.
type UserStore interface {
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, updatedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// RefreshTokenStore persists hashed refresh grants.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) (string, error)
	// FindActiveByHash returns model.ErrTokenNotFound unless the record is neither
	// revoked nor expired.
	FindActiveByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	// Revoke flips an active record to revoked and reports whether this call did it.
	// Two concurrent calls for the same id see exactly one true.
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, encoded string) bool
	DummyHash() string
}

type TokenCodec interface {
	Issue(subjectID string, role string, kind model.TokenKind, ttl time.Duration) (string, time.Time, error)
	Verify(token string, expected model.TokenKind) (model.AuthClaims, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
