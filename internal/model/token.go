package model

import "time"

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// RefreshToken is a persisted refresh grant. Only the hash of the raw token is stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the grant can still be exchanged at the given instant.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.ExpiresAt)
}

type AuthClaims struct {
	UserID    string    `json:"sub"`
	Role      string    `json:"role"`
	Kind      TokenKind `json:"kind"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresIn int64     `json:"refresh_expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             AuthUser  `json:"user"`
}

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)
