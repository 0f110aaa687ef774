// Package secrets provides the one-way hashing primitives used across the
// service: a slow, salted bcrypt hasher for low-entropy secrets (user
// passwords, tenant secrets) and a fast deterministic hash for high-entropy
// opaque secrets (refresh secrets), which must support exact-match lookup.
package secrets

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/pkg/errors"
)

// Hasher hashes and verifies low-entropy secrets with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given bcrypt work factor.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.Errorf("[NewHasher] bcrypt cost %d out of range", cost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns the bcrypt digest of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "[Hasher.Hash] bcrypt.GenerateFromPassword")
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. A wrong secret is never an
// error, it is simply false.
func (h *Hasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// CheckDigest validates that a stored digest is a well-formed bcrypt hash.
// A malformed digest is a configuration error and is surfaced at startup,
// not at request time.
func CheckDigest(digest string) error {
	if _, err := bcrypt.Cost([]byte(digest)); err != nil {
		return errors.Wrap(err, "[CheckDigest] malformed bcrypt digest")
	}
	return nil
}
