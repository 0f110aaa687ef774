package tenants

import (
	"context"
	"errors"

	"github.com/credentive/go-credential-service/secrets"
)

// ErrInvalidTenantCredentials covers both an unknown tenant ID and a wrong
// secret, so callers cannot probe which tenants exist.
var ErrInvalidTenantCredentials = errors.New("invalid tenant credentials")

// Resolver authenticates a tenant from its identifier/secret pair.
type Resolver struct {
	repo   Repo
	hasher *secrets.Hasher
}

func NewResolver(repo Repo, hasher *secrets.Hasher) *Resolver {
	return &Resolver{repo: repo, hasher: hasher}
}

// Resolve returns the tenant identified by tenantID if tenantSecret matches
// its stored secret hash.
func (r *Resolver) Resolve(ctx context.Context, tenantID, tenantSecret string) (*Tenant, error) {
	if tenantID == "" || tenantSecret == "" {
		return nil, ErrInvalidTenantCredentials
	}
	tenant, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidTenantCredentials
		}
		return nil, err
	}
	if !r.hasher.Verify(tenantSecret, tenant.SecretHash) {
		return nil, ErrInvalidTenantCredentials
	}
	return tenant, nil
}
