package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testArgon2 = Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestHasher(t *testing.T, algorithm string) *PasswordHasher {
	t.Helper()

	h, err := NewPasswordHasher(HasherConfig{Algorithm: algorithm, BcryptCost: bcrypt.MinCost, Argon2: testArgon2})
	require.NoError(t, err)
	return h
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	for _, algorithm := range []string{AlgorithmBcrypt, AlgorithmArgon2id} {
		t.Run(algorithm, func(t *testing.T) {
			h := newTestHasher(t, algorithm)

			hash, err := h.Hash("secret123")
			require.NoError(t, err)
			assert.NotEqual(t, "secret123", hash)
			assert.NotContains(t, hash, "secret123")

			assert.True(t, h.Verify("secret123", hash))
			assert.False(t, h.Verify("secret124", hash))
			assert.False(t, h.Verify("", hash))
		})
	}
}

func TestPasswordHasher_SaltIsPerCall(t *testing.T) {
	t.Parallel()

	for _, algorithm := range []string{AlgorithmBcrypt, AlgorithmArgon2id} {
		h := newTestHasher(t, algorithm)

		first, err := h.Hash("same-password")
		require.NoError(t, err)
		second, err := h.Hash("same-password")
		require.NoError(t, err)

		assert.NotEqual(t, first, second, algorithm)
		assert.True(t, h.Verify("same-password", first))
		assert.True(t, h.Verify("same-password", second))
	}
}

func TestPasswordHasher_VerifiesEitherEncoding(t *testing.T) {
	t.Parallel()

	bcryptHasher := newTestHasher(t, AlgorithmBcrypt)
	argonHasher := newTestHasher(t, AlgorithmArgon2id)

	legacy, err := bcryptHasher.Hash("migrating-password")
	require.NoError(t, err)

	assert.True(t, argonHasher.Verify("migrating-password", legacy))
}

func TestPasswordHasher_MalformedHashReturnsFalse(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, AlgorithmArgon2id)

	for _, stored := range []string{
		"",
		"plaintext",
		"$2a$04$short",
		"$argon2id$v=19$m=abc,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1",
	} {
		assert.False(t, h.Verify("anything", stored), stored)
	}
}

func TestPasswordHasher_RejectsExcessiveArgon2Cost(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, AlgorithmArgon2id)

	valid, err := h.Hash("secret123")
	require.NoError(t, err)
	require.True(t, h.Verify("secret123", valid))

	parts := strings.Split(valid, "$")
	for _, params := range []string{
		"m=4294967295,t=1,p=1",
		"m=8192,t=4294967295,p=1",
		"m=8192,t=1,p=255",
	} {
		tampered := strings.Join([]string{parts[0], parts[1], parts[2], params, parts[4], parts[5]}, "$")
		assert.False(t, h.Verify("secret123", tampered), params)
	}
}

func TestPasswordHasher_DummyHashNeverMatches(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, AlgorithmBcrypt)

	require.NotEmpty(t, h.DummyHash())
	assert.True(t, strings.HasPrefix(h.DummyHash(), "$2a$"))
	assert.False(t, h.Verify("", h.DummyHash()))
	assert.False(t, h.Verify("secret123", h.DummyHash()))
}

func TestPasswordHasher_RejectsLongBcryptInput(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t, AlgorithmBcrypt)

	_, err := h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewPasswordHasher_Configuration(t *testing.T) {
	t.Parallel()

	_, err := NewPasswordHasher(HasherConfig{Algorithm: "md5"})
	assert.Error(t, err)

	_, err = NewPasswordHasher(HasherConfig{Algorithm: AlgorithmBcrypt, BcryptCost: 2})
	assert.Error(t, err)

	_, err = NewPasswordHasher(HasherConfig{Algorithm: AlgorithmArgon2id, Argon2: Argon2Params{Memory: 1, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}})
	assert.Error(t, err)

	h, err := NewPasswordHasher(HasherConfig{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBcrypt, h.Algorithm())
}

func TestHashToken_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashToken("abc"))
}
