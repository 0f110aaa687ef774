// Package session implements the refresh-session lifecycle: issuance of
// session pairs, rolling rotation, reuse detection and cascading revocation.
// A refresh session is one continuous chain of "remember me" activity for a
// user under a tenant; each rotation replaces the live record, so the chain
// is a singly-linked sequence of records of which only the last is live.
package session

import (
	"context"
	"time"
)

// RefreshSession is the stored form of a refresh session. The raw secret is
// never persisted; only its fast hash is, which still allows exact-match
// lookup and reuse detection.
type RefreshSession struct {
	ID         string
	UserID     string
	TenantID   string
	SecretHash string
	ExpiresAt  time.Time
	Revoked    bool
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Live reports whether the record is neither revoked nor expired at now.
func (s *RefreshSession) Live(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Repo is the persistence contract for refresh sessions. Records should be
// physically pruned once expired (DeleteExpired), but correctness never
// depends on pruning: revocation and expiry are authoritative by flag and
// timestamp, not by record absence.
type Repo interface {
	Create(ctx context.Context, record *RefreshSession) error
	GetByHash(ctx context.Context, secretHash string) (*RefreshSession, error) // ErrNotFound when absent

	// Revoke marks the record revoked iff it is still live, atomically.
	// Returns false when there was no live record to revoke: either the
	// hash is unknown, or a concurrent rotation got there first.
	Revoke(ctx context.Context, secretHash string) (bool, error)

	// RevokeAllForUser revokes every live session owned by the user within
	// the tenant. The scope is always user+tenant, never global.
	RevokeAllForUser(ctx context.Context, userID, tenantID string) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
