package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/tenants"
)

var _ tenants.Repo = (*TenantRepo)(nil)

// TenantRepo persists registered applications in the tenants table. TTL
// overrides are stored as whole seconds; zero means "use the global default".
type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

const tenantColumns = `id, name, email, secret_hash, frontend_base_url, allowed_origins,
	access_ttl_seconds, refresh_ttl_seconds, email_verified,
	verify_token_hash, verify_token_expires_at, created_at, updated_at`

func (r *TenantRepo) Create(ctx context.Context, tenant *tenants.Tenant) error {
	origins, err := json.Marshal(tenant.AllowedOrigins)
	if err != nil {
		return errors.Wrap(err, "[TenantRepo.Create] marshal origins")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.Email, tenant.SecretHash, tenant.FrontendBaseURL, origins,
		int64(tenant.AccessTokenTTL/time.Second), int64(tenant.RefreshTokenTTL/time.Second),
		tenant.EmailVerified, tenant.VerificationTokenHash, nullTime(tenant.VerificationTokenExpiresAt),
		tenant.CreatedAt, nullTime(tenant.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return tenants.ErrTenantExists
		}
		return errors.Wrap(err, "[TenantRepo.Create] insert")
	}
	return nil
}

func (r *TenantRepo) Update(ctx context.Context, tenant *tenants.Tenant) error {
	origins, err := json.Marshal(tenant.AllowedOrigins)
	if err != nil {
		return errors.Wrap(err, "[TenantRepo.Update] marshal origins")
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, email = ?, secret_hash = ?, frontend_base_url = ?,
		 allowed_origins = ?, access_ttl_seconds = ?, refresh_ttl_seconds = ?,
		 email_verified = ?, verify_token_hash = ?, verify_token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		tenant.Name, tenant.Email, tenant.SecretHash, tenant.FrontendBaseURL,
		origins, int64(tenant.AccessTokenTTL/time.Second), int64(tenant.RefreshTokenTTL/time.Second),
		tenant.EmailVerified, tenant.VerificationTokenHash, nullTime(tenant.VerificationTokenExpiresAt),
		nullTime(tenant.UpdatedAt), tenant.ID)
	if err != nil {
		return errors.Wrap(err, "[TenantRepo.Update] update")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = ?`, tenant.ID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
			return tenants.ErrNotFound
		}
	}
	return nil
}

func (r *TenantRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ? LIMIT 1`, tenantID)
}

func (r *TenantRepo) GetByEmail(ctx context.Context, email string) (*tenants.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE email = ? LIMIT 1`, email)
}

func (r *TenantRepo) GetByVerificationToken(ctx context.Context, tokenHash string) (*tenants.Tenant, error) {
	return r.getOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE verify_token_hash = ? LIMIT 1`, tokenHash)
}

func (r *TenantRepo) List(ctx context.Context) ([]*tenants.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants`)
	if err != nil {
		return nil, errors.Wrap(err, "[TenantRepo.List] query")
	}
	defer rows.Close()

	var listed []*tenants.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "[TenantRepo.List] scan")
		}
		listed = append(listed, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[TenantRepo.List] rows")
	}
	return listed, nil
}

func (r *TenantRepo) getOne(ctx context.Context, query string, args ...any) (*tenants.Tenant, error) {
	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenants.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[TenantRepo.getOne] query")
	}
	return tenant, nil
}

func scanTenant(scan func(dest ...any) error) (*tenants.Tenant, error) {
	var (
		tenant          tenants.Tenant
		origins         []byte
		accessSeconds   int64
		refreshSeconds  int64
		verifyExpiresAt sql.NullTime
		updatedAt       sql.NullTime
	)
	err := scan(
		&tenant.ID, &tenant.Name, &tenant.Email, &tenant.SecretHash, &tenant.FrontendBaseURL, &origins,
		&accessSeconds, &refreshSeconds, &tenant.EmailVerified,
		&tenant.VerificationTokenHash, &verifyExpiresAt, &tenant.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if len(origins) > 0 {
		if err := json.Unmarshal(origins, &tenant.AllowedOrigins); err != nil {
			return nil, errors.Wrap(err, "unmarshal origins")
		}
	}
	tenant.AccessTokenTTL = time.Duration(accessSeconds) * time.Second
	tenant.RefreshTokenTTL = time.Duration(refreshSeconds) * time.Second
	tenant.VerificationTokenExpiresAt = timeValue(verifyExpiresAt)
	tenant.UpdatedAt = timeValue(updatedAt)
	return &tenant, nil
}
