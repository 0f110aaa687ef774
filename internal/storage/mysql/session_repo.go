package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/session"
)

var _ session.Repo = (*SessionRepo)(nil)

// SessionRepo persists refresh sessions in the refresh_sessions table.
// secret_hash carries a unique index; it is the only lookup key presented
// by callers.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, record *session.RefreshSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (id, user_id, tenant_id, secret_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, record.TenantID, record.SecretHash, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.Create] %v", err)
	}
	return nil
}

func (r *SessionRepo) GetByHash(ctx context.Context, secretHash string) (*session.RefreshSession, error) {
	var (
		record    session.RefreshSession
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, secret_hash, expires_at, revoked_at IS NOT NULL, created_at, revoked_at
		 FROM refresh_sessions WHERE secret_hash = ? LIMIT 1`,
		secretHash).Scan(&record.ID, &record.UserID, &record.TenantID, &record.SecretHash,
		&record.ExpiresAt, &record.Revoked, &record.CreatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.GetByHash] %v", err)
	}
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	return &record, nil
}

// Revoke flips the record to revoked iff it is still unrevoked. The single
// conditional UPDATE is the arbiter for concurrent rotations: the affected
// row count tells exactly one caller it won.
func (r *SessionRepo) Revoke(ctx context.Context, secretHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = UTC_TIMESTAMP()
		 WHERE secret_hash = ? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()`,
		secretHash)
	if err != nil {
		return false, errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.Revoke] %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.Revoke] rows affected: %v", err)
	}
	return affected == 1, nil
}

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID, tenantID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = UTC_TIMESTAMP()
		 WHERE user_id = ? AND tenant_id = ? AND revoked_at IS NULL`,
		userID, tenantID)
	if err != nil {
		return errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.RevokeAllForUser] %v", err)
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at < ?`, before)
	if err != nil {
		return 0, errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.DeleteExpired] %v", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(session.ErrStoreUnavailable, "[SessionRepo.DeleteExpired] rows affected: %v", err)
	}
	return deleted, nil
}
