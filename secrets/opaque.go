package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// NewOpaque returns a cryptographically random secret of n bytes, hex
// encoded. Used for refresh secrets and freshly issued tenant secrets.
func NewOpaque(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[NewOpaque] rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

// HashOpaque returns the SHA-256 hex digest of a raw opaque secret.
//
// Refresh secrets are hashed with a fast unsalted hash rather than bcrypt:
// the raw secret is already high-entropy random data, and the store needs an
// exact-match index lookup by hash at request-time latency. Salting would
// defeat the index.
func HashOpaque(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
