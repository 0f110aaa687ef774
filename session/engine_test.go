package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/session"
	sessionrepofake "github.com/credentive/go-credential-service/session/repofake"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
	userrepofake "github.com/credentive/go-credential-service/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = "user-1"
	testTenantID = "tenant-1"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordedEvents) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordedEvents) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]audit.Action, 0, len(r.events))
	for _, e := range r.events {
		actions = append(actions, e.Action)
	}
	return actions
}

type engineFixture struct {
	sessions *sessionrepofake.FakeSessionRepo
	userRepo *userrepofake.FakeUserRepo
	issuer   *token.Issuer
	recorder *recordedEvents
	engine   *session.Engine
	now      time.Time
	nowLock  sync.Mutex
}

func (f *engineFixture) nowTime() time.Time {
	f.nowLock.Lock()
	defer f.nowLock.Unlock()
	return f.now
}

func (f *engineFixture) advance(d time.Duration) {
	f.nowLock.Lock()
	defer f.nowLock.Unlock()
	f.now = f.now.Add(d)
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	fixture := &engineFixture{
		userRepo: userrepofake.NewFakeUserRepo(),
		recorder: &recordedEvents{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	// The store must share the fixture clock, or liveness checks would
	// compare pinned expiries against the wall clock.
	fixture.sessions = sessionrepofake.NewFakeSessionRepo(sessionrepofake.WithNowTime(fixture.nowTime))

	issuer, err := token.NewIssuer("engine-test-secret", token.WithNowTime(fixture.nowTime))
	require.NoError(t, err)
	fixture.issuer = issuer

	engine, err := session.NewEngine(
		fixture.sessions,
		fixture.userRepo,
		issuer,
		config.Auth{},
		fixture.recorder,
		session.WithNowTime(fixture.nowTime),
	)
	require.NoError(t, err)
	fixture.engine = engine

	require.NoError(t, fixture.userRepo.Create(context.Background(), &users.User{
		ID:            testUserID,
		TenantID:      testTenantID,
		Email:         "jane@example.com",
		EmailVerified: true,
		Roles:         users.DefaultRoles(),
	}))
	return fixture
}

func testTenant() *tenants.Tenant {
	return &tenants.Tenant{ID: testTenantID, Name: "Test App"}
}

func (f *engineFixture) user(t *testing.T) *users.User {
	t.Helper()
	user, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	return user
}

func TestMintIssuesCredentials(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	creds, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	require.NotEmpty(t, creds.AccessToken)
	require.Len(t, creds.RefreshSecret, 128) // 64 random bytes, hex encoded

	claims, err := f.issuer.Verify(creds.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.UserID)
	assert.Equal(t, testTenantID, claims.TenantID)
	assert.Equal(t, []string{users.RoleUser}, claims.Roles)

	assert.Equal(t, 1, f.sessions.LiveCountForUser(testUserID, testTenantID))
}

func TestMintDoesNotTouchExistingSessions(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	first, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	_, err = f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	assert.Equal(t, 2, f.sessions.LiveCountForUser(testUserID, testTenantID))

	// The first lineage still rotates normally.
	_, err = f.engine.Rotate(ctx, first.RefreshSecret, testTenant())
	require.NoError(t, err)
}

func TestRotateSingleUse(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	rotated, err := f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
	require.NoError(t, err)
	require.NotEqual(t, minted.RefreshSecret, rotated.RefreshSecret)

	// Replaying the consumed secret is a reuse signal...
	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	// ...which kills the whole family, including the fresh secret.
	_, err = f.engine.Rotate(ctx, rotated.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	assert.Contains(t, f.recorder.actions(), audit.ActionTokenReuseDetected)
}

func TestReuseBlastRadiusCoversIndependentLineages(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// Two independent device lineages for the same user+tenant.
	lineage1, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	lineage2, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	_, err = f.engine.Rotate(ctx, lineage1.RefreshSecret, testTenant())
	require.NoError(t, err)

	// Replaying the dead secret from lineage 1 invalidates lineage 2 too.
	_, err = f.engine.Rotate(ctx, lineage1.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	_, err = f.engine.Rotate(ctx, lineage2.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	assert.Equal(t, 0, f.sessions.LiveCountForUser(testUserID, testTenantID))

	// A fresh login is independent of the revoked family.
	fresh, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	_, err = f.engine.Rotate(ctx, fresh.RefreshSecret, testTenant())
	require.NoError(t, err)
}

func TestRotateUnknownSecret(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	_, err = f.engine.Rotate(ctx, "never-issued-secret", testTenant())
	require.ErrorIs(t, err, session.ErrInvalidSession)

	// An unknown secret identifies no user, so nothing was revoked.
	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
	require.NoError(t, err)
}

func TestRotateTenantMismatchFailsClosed(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	otherTenant := &tenants.Tenant{ID: "tenant-2", Name: "Other App"}
	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, otherTenant)
	require.ErrorIs(t, err, session.ErrInvalidSession)

	// The mismatch must not trigger the compromise response: the caller
	// tenant is unproven, so the legitimate lineage survives.
	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
	require.NoError(t, err)
}

func TestRotateExpiredSecretIsReuse(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	f.advance(31 * 24 * time.Hour) // past the 30d default refresh TTL

	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)
}

func TestTenantTTLOverrides(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	tenant := testTenant()
	tenant.AccessTokenTTL = time.Minute
	tenant.RefreshTokenTTL = time.Hour

	minted, err := f.engine.Mint(ctx, f.user(t), tenant)
	require.NoError(t, err)

	claims, err := f.issuer.Verify(minted.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.nowTime().Add(time.Minute).Unix(), claims.ExpiresAt.Unix())

	// Refresh expiry follows the override too: two hours later the secret
	// is expired, which presents as reuse.
	f.advance(2 * time.Hour)
	_, err = f.engine.Rotate(ctx, minted.RefreshSecret, tenant)
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)
}

func TestRevokeOneIsIdempotent(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	require.NoError(t, f.engine.RevokeOne(ctx, "unknown-secret"))
	require.NoError(t, f.engine.RevokeOne(ctx, minted.RefreshSecret))
	require.NoError(t, f.engine.RevokeOne(ctx, minted.RefreshSecret))
	require.NoError(t, f.engine.RevokeOne(ctx, ""))

	assert.Equal(t, 0, f.sessions.LiveCountForUser(testUserID, testTenantID))
}

func TestRevokeAll(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	_, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	_, err = f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	require.NoError(t, f.engine.RevokeAll(ctx, testUserID, testTenantID))
	assert.Equal(t, 0, f.sessions.LiveCountForUser(testUserID, testTenantID))
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	minted, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	results := make(chan error, 2)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			_, err := f.engine.Rotate(ctx, minted.RefreshSecret, testTenant())
			results <- err
		}()
	}
	start.Done()

	var successes, reuses int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, session.ErrSessionReuseDetected)
			reuses++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, reuses)
}

func TestFullLifecycleScenario(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	// Login mints {A1, R1}.
	first, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)

	// rotate(R1) yields {A2, R2}; R1 is now dead.
	second, err := f.engine.Rotate(ctx, first.RefreshSecret, testTenant())
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshSecret, second.RefreshSecret)

	// rotate(R1) again: reuse detected.
	_, err = f.engine.Rotate(ctx, first.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	// rotate(R2): family revoked.
	_, err = f.engine.Rotate(ctx, second.RefreshSecret, testTenant())
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)

	// A fresh login succeeds and is independent.
	fresh, err := f.engine.Mint(ctx, f.user(t), testTenant())
	require.NoError(t, err)
	_, err = f.engine.Rotate(ctx, fresh.RefreshSecret, testTenant())
	require.NoError(t, err)
}
