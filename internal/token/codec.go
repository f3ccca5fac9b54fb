package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-service/internal/model"
)

const minSecretLength = 32

type CodecConfig struct {
	Secret    string
	Algorithm string
	Issuer    string
	Now       func() time.Time
}

// Codec signs and verifies HMAC tokens carrying a subject, a role and a kind claim.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	now    func() time.Time
}

type claims struct {
	Role string          `json:"role"`
	Kind model.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}

	var method *jwt.SigningMethodHMAC
	switch strings.ToUpper(strings.TrimSpace(cfg.Algorithm)) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		secret: []byte(cfg.Secret),
		method: method,
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Issue returns the signed token and its expiry. A non-positive ttl produces a token
// that is already expired. A positive ttl is rounded up to the next whole second so
// the token is never expired at the moment it is issued.
func (c *Codec) Issue(subjectID string, role string, kind model.TokenKind, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", model.ErrInvalidInput)
	}
	if !kind.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown token kind %q", model.ErrInvalidInput, kind)
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	if ttl > 0 && expiresAt.Before(now.Add(ttl)) {
		expiresAt = expiresAt.Add(time.Second)
	}

	tok := jwt.NewWithClaims(c.method, claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature first, then expiry, then the kind claim. The returned
// error wraps exactly one of model.ErrMalformedToken, model.ErrInvalidSignature,
// model.ErrExpiredToken or model.ErrWrongKind.
func (c *Codec) Verify(tokenString string, expected model.TokenKind) (model.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed := &claims{}
	_, err := jwt.ParseWithClaims(tokenString, parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return model.AuthClaims{}, classify(err)
	}

	if parsed.Subject == "" || parsed.IssuedAt == nil || !parsed.Kind.Valid() {
		return model.AuthClaims{}, fmt.Errorf("%w: missing required claims", model.ErrMalformedToken)
	}
	if parsed.Kind != expected {
		return model.AuthClaims{}, fmt.Errorf("%w: got %s, want %s", model.ErrWrongKind, parsed.Kind, expected)
	}

	return model.AuthClaims{
		UserID:    parsed.Subject,
		Role:      parsed.Role,
		Kind:      parsed.Kind,
		TokenID:   parsed.ID,
		IssuedAt:  parsed.IssuedAt.Time,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", model.ErrExpiredToken, err)
	default:
		return fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
	}
}
