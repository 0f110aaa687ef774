package tenants

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("tenant not found")
	ErrTenantExists = errors.New("tenant already registered")
)

type Repo interface {
	Create(ctx context.Context, tenant *Tenant) error // ErrTenantExists on duplicate id or email
	Update(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	GetByEmail(ctx context.Context, email string) (*Tenant, error)
	GetByVerificationToken(ctx context.Context, tokenHash string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}
