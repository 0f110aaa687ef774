package tenantrepofakes

import (
	"context"
	"sync"

	"github.com/credentive/go-credential-service/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	byID map[string]*tenants.Tenant
	lock sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{byID: make(map[string]*tenants.Tenant)}
}

func (r *FakeTenantRepo) Create(_ context.Context, tenant *tenants.Tenant) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byID[tenant.ID]; ok {
		return tenants.ErrTenantExists
	}
	for _, existing := range r.byID {
		if existing.Email == tenant.Email {
			return tenants.ErrTenantExists
		}
	}
	copied := *tenant
	r.byID[tenant.ID] = &copied
	return nil
}

func (r *FakeTenantRepo) Update(_ context.Context, tenant *tenants.Tenant) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byID[tenant.ID]; !ok {
		return tenants.ErrNotFound
	}
	copied := *tenant
	r.byID[tenant.ID] = &copied
	return nil
}

func (r *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	tenant, ok := r.byID[tenantID]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (r *FakeTenantRepo) GetByEmail(_ context.Context, email string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, tenant := range r.byID {
		if tenant.Email == email {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, tenants.ErrNotFound
}

func (r *FakeTenantRepo) List(_ context.Context) ([]*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	listed := make([]*tenants.Tenant, 0, len(r.byID))
	for _, tenant := range r.byID {
		copied := *tenant
		listed = append(listed, &copied)
	}
	return listed, nil
}

func (r *FakeTenantRepo) GetByVerificationToken(_ context.Context, tokenHash string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, tenant := range r.byID {
		if tenant.VerificationTokenHash != "" && tenant.VerificationTokenHash == tokenHash {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, tenants.ErrNotFound
}
