package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()

	codec, err := NewCodec(CodecConfig{Secret: testSecret, Algorithm: "HS256", Issuer: "auth-test", Now: now})
	require.NoError(t, err)
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	for _, kind := range []model.TokenKind{model.TokenKindAccess, model.TokenKindRefresh} {
		signed, expiresAt, err := codec.Issue("user-1", model.RoleUser, kind, 30*time.Minute)
		require.NoError(t, err)
		assert.Len(t, strings.Split(signed, "."), 3)
		assert.WithinDuration(t, time.Now().Add(30*time.Minute), expiresAt, 2*time.Second)

		claims, err := codec.Verify(signed, kind)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, model.RoleUser, claims.Role)
		assert.Equal(t, kind, claims.Kind)
		assert.NotEmpty(t, claims.TokenID)
		assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
	}
}

func TestCodec_TokensAreUnique(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return fixed })

	first, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindRefresh, time.Hour)
	require.NoError(t, err)
	second, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindRefresh, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	signed, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, -time.Second)
	require.NoError(t, err)

	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrExpiredToken)
}

func TestCodec_ExpiresWhenClockPassesExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	signed, _, err := codec.Issue("user-1", model.RoleAdmin, model.TokenKindAccess, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(signed, model.TokenKindAccess)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrExpiredToken)
}

func TestCodec_SubSecondTTLIsValidWhenIssued(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 200*int(time.Millisecond), time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	signed, expiresAt, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, 500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(now), "expiry %s must be after issue time %s", expiresAt, now)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC), expiresAt)

	claims, err := codec.Verify(signed, model.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())

	now = now.Add(time.Second)
	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrExpiredToken)
}

func TestCodec_ZeroTTLIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 200*int(time.Millisecond), time.UTC)
	codec := newTestCodec(t, func() time.Time { return now })

	signed, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, 0)
	require.NoError(t, err)

	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrExpiredToken)
}

func TestCodec_KindIsolation(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	refresh, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindRefresh, time.Hour)
	require.NoError(t, err)
	_, err = codec.Verify(refresh, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrWrongKind)

	access, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, time.Hour)
	require.NoError(t, err)
	_, err = codec.Verify(access, model.TokenKindRefresh)
	assert.ErrorIs(t, err, model.ErrWrongKind)
}

func TestCodec_InvalidSignature(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)
	other, err := NewCodec(CodecConfig{Secret: strings.Repeat("x", 32), Issuer: "auth-test"})
	require.NoError(t, err)

	signed, _, err := other.Issue("user-1", model.RoleUser, model.TokenKindAccess, time.Hour)
	require.NoError(t, err)
	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)

	valid, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = codec.Verify(parts[0]+"."+parts[1]+"."+string(sig), model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
}

func TestCodec_SignatureCheckedBeforeExpiry(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)
	other, err := NewCodec(CodecConfig{Secret: strings.Repeat("y", 32), Issuer: "auth-test"})
	require.NoError(t, err)

	forged, _, err := other.Issue("user-1", model.RoleAdmin, model.TokenKindAccess, -time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(forged, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
}

func TestCodec_AlgorithmMismatch(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		Kind: model.TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "auth-test",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims{Kind: model.TokenKindAccess})
	none, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.Verify(none, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrInvalidSignature)
}

func TestCodec_Malformed(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	for _, input := range []string{"", "abc", "a.b", "a.b.c", "not base64.!!.??"} {
		_, err := codec.Verify(input, model.TokenKindAccess)
		assert.ErrorIs(t, err, model.ErrMalformedToken, input)
	}
}

func TestCodec_MissingKindIsMalformed(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "auth-test",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = codec.Verify(signed, model.TokenKindAccess)
	assert.ErrorIs(t, err, model.ErrMalformedToken)
}

func TestCodec_ErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, nil)

	expired, _, err := codec.Issue("user-1", model.RoleUser, model.TokenKindAccess, -time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(expired, model.TokenKindAccess)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExpiredToken)
	assert.NotErrorIs(t, err, model.ErrInvalidSignature)
	assert.NotErrorIs(t, err, model.ErrWrongKind)
	assert.NotErrorIs(t, err, model.ErrMalformedToken)
	assert.True(t, model.IsTokenError(err))
}

func TestNewCodec_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(CodecConfig{Secret: "short"})
	assert.Error(t, err)

	_, err = NewCodec(CodecConfig{Secret: testSecret, Algorithm: "RS256"})
	assert.Error(t, err)

	codec, err := NewCodec(CodecConfig{Secret: testSecret, Algorithm: "hs512"})
	require.NoError(t, err)
	assert.Equal(t, "HS512", codec.Algorithm())

	_, _, err = codec.Issue("", model.RoleUser, model.TokenKindAccess, time.Minute)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = codec.Issue("user-1", model.RoleUser, model.TokenKind("id"), time.Minute)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
