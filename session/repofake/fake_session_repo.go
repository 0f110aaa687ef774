package sessionrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/internal/utils"
	"github.com/credentive/go-credential-service/session"
)

var _ session.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory session store. The mutex gives Revoke the
// same revoke-iff-live atomicity a real store provides with a conditional
// write.
type FakeSessionRepo struct {
	byHash  map[string]*session.RefreshSession
	nowTime func() time.Time
	lock    sync.Mutex
}

// RepoOption configures a FakeSessionRepo.
type RepoOption func(*FakeSessionRepo)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RepoOption {
	return func(r *FakeSessionRepo) {
		r.nowTime = nowFunc
	}
}

func NewFakeSessionRepo(options ...RepoOption) *FakeSessionRepo {
	repo := &FakeSessionRepo{
		byHash:  make(map[string]*session.RefreshSession),
		nowTime: time.Now,
	}
	for _, option := range options {
		option(repo)
	}
	return repo
}

func (r *FakeSessionRepo) Create(_ context.Context, record *session.RefreshSession) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.byHash[record.SecretHash]; ok {
		return errors.New("duplicate secret hash")
	}
	copied := *record
	r.byHash[record.SecretHash] = &copied
	return nil
}

func (r *FakeSessionRepo) GetByHash(_ context.Context, secretHash string) (*session.RefreshSession, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.byHash[secretHash]
	if !ok {
		return nil, session.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *FakeSessionRepo) Revoke(_ context.Context, secretHash string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.byHash[secretHash]
	if !ok || record.Revoked {
		return false, nil
	}
	record.Revoked = true
	record.RevokedAt = utils.Ptr(r.nowTime())
	return true, nil
}

func (r *FakeSessionRepo) RevokeAllForUser(_ context.Context, userID, tenantID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.nowTime()
	for _, record := range r.byHash {
		if record.UserID == userID && record.TenantID == tenantID && !record.Revoked {
			record.Revoked = true
			record.RevokedAt = utils.Ptr(now)
		}
	}
	return nil
}

func (r *FakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var deleted int64
	for hash, record := range r.byHash {
		if record.ExpiresAt.Before(before) {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}

// LiveCountForUser reports how many live sessions a user has within a
// tenant. Test helper.
func (r *FakeSessionRepo) LiveCountForUser(userID, tenantID string) int {
	r.lock.Lock()
	defer r.lock.Unlock()

	count := 0
	now := r.nowTime()
	for _, record := range r.byHash {
		if record.UserID == userID && record.TenantID == tenantID && record.Live(now) {
			count++
		}
	}
	return count
}
