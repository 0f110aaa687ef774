package userrepofake

import (
	"context"
	"sync"

	"github.com/credentive/go-credential-service/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byID   map[string]*users.User
	emails map[string]string // tenantID+"\x00"+email -> user ID
	lock   sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:   make(map[string]*users.User),
		emails: make(map[string]string),
	}
}

func emailKey(tenantID, email string) string {
	return tenantID + "\x00" + users.NormalizeEmail(email)
}

func (r *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := emailKey(user.TenantID, user.Email)
	if _, ok := r.emails[key]; ok {
		return users.ErrUserExists
	}
	copied := *user
	r.byID[user.ID] = &copied
	r.emails[key] = user.ID
	return nil
}

func (r *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byID[user.ID]; !ok {
		return users.ErrNotFound
	}
	copied := *user
	r.byID[user.ID] = &copied
	return nil
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *FakeUserRepo) GetByEmail(_ context.Context, tenantID, email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emails[emailKey(tenantID, email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

func (r *FakeUserRepo) GetByIdentity(_ context.Context, tenantID, provider, providerID string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, user := range r.byID {
		if user.TenantID != tenantID {
			continue
		}
		for _, identity := range user.Identities {
			if identity.Provider == provider && identity.ProviderID == providerID {
				copied := *user
				return &copied, nil
			}
		}
	}
	return nil, users.ErrNotFound
}

func (r *FakeUserRepo) GetByVerificationToken(_ context.Context, tenantID, tokenHash string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, user := range r.byID {
		if user.TenantID == tenantID && user.VerificationTokenHash == tokenHash {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

func (r *FakeUserRepo) GetByResetToken(_ context.Context, tenantID, tokenHash string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, user := range r.byID {
		if user.TenantID == tenantID && user.ResetTokenHash == tokenHash {
			copied := *user
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}
