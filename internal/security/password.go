package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"

	DefaultBcryptCost = 12

	argon2CeilingFactor = 4
	maxArgon2KeyLength  = 512
)

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

type HasherConfig struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
}

// PasswordHasher produces self-describing salted hashes. Verify accepts both bcrypt
// and argon2id encodings regardless of the algorithm used for new hashes.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	argon      Argon2Params
	dummy      string
}

func NewPasswordHasher(cfg HasherConfig) (*PasswordHasher, error) {
	algorithm := strings.ToLower(strings.TrimSpace(cfg.Algorithm))
	if algorithm == "" {
		algorithm = AlgorithmBcrypt
	}
	if algorithm != AlgorithmBcrypt && algorithm != AlgorithmArgon2id {
		return nil, fmt.Errorf("unsupported password hasher %q", cfg.Algorithm)
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	params := cfg.Argon2
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params
	}
	if params.Memory < 8*1024 || params.Time < 1 || params.Parallelism < 1 || params.SaltLength < 16 || params.KeyLength < 16 {
		return nil, errors.New("argon2 parameters below minimum")
	}

	h := &PasswordHasher{algorithm: algorithm, bcryptCost: cost, argon: params}

	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("seed dummy hash: %w", err)
	}
	dummy, err := h.Hash(base64.RawStdEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("build dummy hash: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

func (h *PasswordHasher) Algorithm() string {
	return h.algorithm
}

// DummyHash is a valid hash of an unknown random secret. Verifying against it costs the
// same as a real verification and never succeeds.
func (h *PasswordHasher) DummyHash() string {
	return h.dummy
}

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if h.algorithm == AlgorithmArgon2id {
		return h.hashArgon2(plaintext)
	}

	if len(plaintext) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

// Verify never returns an error: malformed stored hashes simply fail.
func (h *PasswordHasher) Verify(plaintext string, encoded string) bool {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return h.verifyArgon2(plaintext, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext)) == nil
	default:
		return false
	}
}

func (h *PasswordHasher) hashArgon2(plaintext string) (string, error) {
	salt := make([]byte, h.argon.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.argon.Time, h.argon.Memory, h.argon.Parallelism, h.argon.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.argon.Memory,
		h.argon.Time,
		h.argon.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// argon2Ceiling bounds the cost parameters accepted from a stored hash so a corrupted
// row cannot make verification allocate without limit.
func (h *PasswordHasher) argon2Ceiling() Argon2Params {
	base := DefaultArgon2Params
	base.Memory = max(base.Memory, h.argon.Memory)
	base.Time = max(base.Time, h.argon.Time)
	base.Parallelism = max(base.Parallelism, h.argon.Parallelism)
	return Argon2Params{
		Memory:      base.Memory * argon2CeilingFactor,
		Time:        base.Time * argon2CeilingFactor,
		Parallelism: uint8(min(int(base.Parallelism)*argon2CeilingFactor, 255)),
		KeyLength:   maxArgon2KeyLength,
	}
}

func (h *PasswordHasher) verifyArgon2(plaintext string, encoded string) bool {
	// $argon2id$v=19$m=65536,t=3,p=2$salt$hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return false
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return false
	}
	ceiling := h.argon2Ceiling()
	if memory > ceiling.Memory || iterations > ceiling.Time || parallelism > ceiling.Parallelism {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > int(ceiling.KeyLength) {
		return false
	}

	got := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
