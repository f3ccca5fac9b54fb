package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token codec errors
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongKind        = errors.New("wrong token kind")
	ErrMalformedToken   = errors.New("malformed token")

	// Refresh grant errors
	ErrTokenNotFound   = errors.New("token not found")
	ErrRefreshRejected = errors.New("refresh token rejected")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Persistence
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

// IsTokenError reports whether err came from decoding or verifying a signed token.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrWrongKind) ||
		errors.Is(err, ErrMalformedToken)
}
