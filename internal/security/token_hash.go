package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the lookup key stored for a refresh token. Refresh tokens are
// high-entropy signed values, so a fast unsalted digest is enough for equality lookup.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
