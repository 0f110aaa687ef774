package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/users"
)

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo persists users in the users table plus a user_identities side
// table for external provider links. (tenant_id, email) and
// (tenant_id, provider, provider_id) carry unique indexes.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, tenant_id, email, password_hash, email_verified, roles,
	verify_token_hash, verify_token_expires_at, reset_token_hash, reset_token_expires_at,
	created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create] marshal roles")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create] begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.TenantID, user.Email, user.PasswordHash, user.EmailVerified, roles,
		user.VerificationTokenHash, nullTime(user.VerificationTokenExpiresAt),
		user.ResetTokenHash, nullTime(user.ResetTokenExpiresAt),
		user.CreatedAt, nullTime(user.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return users.ErrUserExists
		}
		return errors.Wrap(err, "[UserRepo.Create] insert user")
	}

	if err := r.replaceIdentities(ctx, tx, user); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "[UserRepo.Create] commit")
}

func (r *UserRepo) Update(ctx context.Context, user *users.User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Update] marshal roles")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Update] begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, email_verified = ?, roles = ?,
		 verify_token_hash = ?, verify_token_expires_at = ?,
		 reset_token_hash = ?, reset_token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.PasswordHash, user.EmailVerified, roles,
		user.VerificationTokenHash, nullTime(user.VerificationTokenExpiresAt),
		user.ResetTokenHash, nullTime(user.ResetTokenExpiresAt),
		nullTime(user.UpdatedAt), user.ID)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Update] update user")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// RowsAffected is also 0 for no-op updates; confirm absence.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, user.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return users.ErrNotFound
		}
	}

	if err := r.replaceIdentities(ctx, tx, user); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "[UserRepo.Update] commit")
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, tenantID, email string) (*users.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND email = ? LIMIT 1`,
		tenantID, email)
}

func (r *UserRepo) GetByIdentity(ctx context.Context, tenantID, provider, providerID string) (*users.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users u
		 JOIN user_identities i ON i.user_id = u.id
		 WHERE i.tenant_id = ? AND i.provider = ? AND i.provider_id = ? LIMIT 1`,
		tenantID, provider, providerID)
}

func (r *UserRepo) GetByVerificationToken(ctx context.Context, tenantID, tokenHash string) (*users.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND verify_token_hash = ? LIMIT 1`,
		tenantID, tokenHash)
}

func (r *UserRepo) GetByResetToken(ctx context.Context, tenantID, tokenHash string) (*users.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND reset_token_hash = ? LIMIT 1`,
		tenantID, tokenHash)
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*users.User, error) {
	var (
		user            users.User
		roles           []byte
		verifyExpiresAt sql.NullTime
		resetExpiresAt  sql.NullTime
		updatedAt       sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &user.EmailVerified, &roles,
		&user.VerificationTokenHash, &verifyExpiresAt,
		&user.ResetTokenHash, &resetExpiresAt,
		&user.CreatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.getOne] query")
	}

	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &user.Roles); err != nil {
			return nil, errors.Wrap(err, "[UserRepo.getOne] unmarshal roles")
		}
	}
	user.VerificationTokenExpiresAt = timeValue(verifyExpiresAt)
	user.ResetTokenExpiresAt = timeValue(resetExpiresAt)
	user.UpdatedAt = timeValue(updatedAt)

	if err := r.loadIdentities(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) loadIdentities(ctx context.Context, user *users.User) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, provider_id FROM user_identities WHERE user_id = ?`, user.ID)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.loadIdentities] query")
	}
	defer rows.Close()

	for rows.Next() {
		var identity users.ExternalIdentity
		if err := rows.Scan(&identity.Provider, &identity.ProviderID); err != nil {
			return errors.Wrap(err, "[UserRepo.loadIdentities] scan")
		}
		user.Identities = append(user.Identities, identity)
	}
	return errors.Wrap(rows.Err(), "[UserRepo.loadIdentities] rows")
}

func (r *UserRepo) replaceIdentities(ctx context.Context, tx *sql.Tx, user *users.User) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_identities WHERE user_id = ?`, user.ID); err != nil {
		return errors.Wrap(err, "[UserRepo.replaceIdentities] delete")
	}
	for _, identity := range user.Identities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_identities (user_id, tenant_id, provider, provider_id) VALUES (?, ?, ?, ?)`,
			user.ID, user.TenantID, identity.Provider, identity.ProviderID); err != nil {
			return errors.Wrap(err, "[UserRepo.replaceIdentities] insert")
		}
	}
	return nil
}
