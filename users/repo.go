package users

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("user already exists")
)

// UserRepo persists users. Lookups other than GetByID are tenant-scoped;
// no call may cross tenants.
type UserRepo interface {
	Create(ctx context.Context, user *User) error // ErrUserExists on duplicate (email, tenant)
	Update(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)
	GetByIdentity(ctx context.Context, tenantID, provider, providerID string) (*User, error)
	GetByVerificationToken(ctx context.Context, tenantID, tokenHash string) (*User, error)
	GetByResetToken(ctx context.Context, tenantID, tokenHash string) (*User, error)
}
