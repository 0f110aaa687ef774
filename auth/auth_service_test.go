package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/auth"
	"github.com/credentive/go-credential-service/extidentity"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/secrets"
	"github.com/credentive/go-credential-service/session"
	sessionrepofake "github.com/credentive/go-credential-service/session/repofake"
	"github.com/credentive/go-credential-service/tenants"
	tenantrepofakes "github.com/credentive/go-credential-service/tenants/repofakes"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
	userrepofake "github.com/credentive/go-credential-service/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenantID  = "tenant-1"
	otherTenantID = "tenant-2"
	testEmail     = "jane.doe@example.com"
	testPassword  = "Password123"
)

type testFixture struct {
	userRepo    *userrepofake.FakeUserRepo
	tenantRepo  *tenantrepofakes.FakeTenantRepo
	sessionRepo *sessionrepofake.FakeSessionRepo
	issuer      *token.Issuer
	hasher      *secrets.Hasher
	engine      *session.Engine
	service     *auth.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	userRepo := userrepofake.NewFakeUserRepo()
	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	sessionRepo := sessionrepofake.NewFakeSessionRepo()

	issuer, err := token.NewIssuer("auth-test-secret")
	require.NoError(t, err)

	hasher, err := secrets.NewHasher(4) // min cost keeps tests fast
	require.NoError(t, err)

	engine, err := session.NewEngine(sessionRepo, userRepo, issuer, config.Auth{}, audit.Nop{})
	require.NoError(t, err)

	service, err := auth.NewService(auth.Repos{Users: userRepo, Tenants: tenantRepo}, engine, hasher, audit.Nop{})
	require.NoError(t, err)

	for _, id := range []string{testTenantID, otherTenantID} {
		require.NoError(t, tenantRepo.Create(context.Background(), &tenants.Tenant{ID: id, Name: "App " + id, Email: id + "@example.com"}))
	}

	return &testFixture{
		userRepo:    userRepo,
		tenantRepo:  tenantRepo,
		sessionRepo: sessionRepo,
		issuer:      issuer,
		hasher:      hasher,
		engine:      engine,
		service:     service,
	}
}

func (f *testFixture) tenant(t *testing.T, id string) *tenants.Tenant {
	t.Helper()
	tenant, err := f.tenantRepo.Get(context.Background(), id)
	require.NoError(t, err)
	return tenant
}

func (f *testFixture) createUser(t *testing.T, tenantID, email, password string, verified bool) *users.User {
	t.Helper()

	user := &users.User{
		ID:            "user-" + tenantID + "-" + email,
		TenantID:      tenantID,
		Email:         users.NormalizeEmail(email),
		EmailVerified: verified,
		Roles:         users.DefaultRoles(),
	}
	if password != "" {
		hash, err := f.hasher.Hash(password)
		require.NoError(t, err)
		user.PasswordHash = hash
	}
	require.NoError(t, f.userRepo.Create(context.Background(), user))
	return user
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.createUser(t, testTenantID, testEmail, testPassword, true)

	creds, user, err := f.service.Login(ctx, f.tenant(t, testTenantID), testEmail, testPassword, auth.Client{})
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.NotEmpty(t, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshSecret)
	assert.Equal(t, users.NormalizeEmail(testEmail), user.Email)

	claims, err := f.issuer.Verify(creds.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testTenantID, claims.TenantID)
}

func TestLoginEnumerationResistance(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.createUser(t, testTenantID, testEmail, testPassword, true)
	tenant := f.tenant(t, testTenantID)

	// Unknown email and wrong password fail with the same error kind.
	_, _, errUnknown := f.service.Login(ctx, tenant, "nobody@example.com", testPassword, auth.Client{})
	_, _, errWrongPass := f.service.Login(ctx, tenant, testEmail, "WrongPassword1", auth.Client{})

	require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPass, auth.ErrInvalidCredentials)
}

func TestLoginPasswordlessAccountRejected(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.createUser(t, testTenantID, testEmail, "", true) // external-identity-only account

	_, _, err := f.service.Login(ctx, f.tenant(t, testTenantID), testEmail, testPassword, auth.Client{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginUnverifiedEmailBlocked(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.createUser(t, testTenantID, testEmail, testPassword, false)

	_, _, err := f.service.Login(ctx, f.tenant(t, testTenantID), testEmail, testPassword, auth.Client{})
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)
	require.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestTenantIsolation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	// Same email under two tenants: two distinct users.
	userA := f.createUser(t, testTenantID, testEmail, testPassword, true)
	userB := f.createUser(t, otherTenantID, testEmail, "OtherPassword1", true)
	require.NotEqual(t, userA.ID, userB.ID)

	credsA, _, err := f.service.Login(ctx, f.tenant(t, testTenantID), testEmail, testPassword, auth.Client{})
	require.NoError(t, err)

	// Tenant B's password does not work under tenant A.
	_, _, err = f.service.Login(ctx, f.tenant(t, testTenantID), testEmail, "OtherPassword1", auth.Client{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// A refresh session minted under A is invalid under B, and probing it
	// from B does not burn A's session.
	_, err = f.service.Refresh(ctx, f.tenant(t, otherTenantID), credsA.RefreshSecret)
	require.ErrorIs(t, err, session.ErrInvalidSession)
	_, err = f.service.Refresh(ctx, f.tenant(t, testTenantID), credsA.RefreshSecret)
	require.NoError(t, err)
}

func TestRegisterAndVerifyFlow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)

	require.NoError(t, f.service.Register(ctx, tenant, testEmail, testPassword, auth.Client{}))

	// Unverified: login is blocked outright.
	_, _, err := f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)

	// Duplicate registration is rejected.
	err = f.service.Register(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.ErrorIs(t, err, users.ErrUserExists)

	// Simulate following the emailed link by marking the user verified.
	user, err := f.userRepo.GetByEmail(ctx, tenant.ID, users.NormalizeEmail(testEmail))
	require.NoError(t, err)
	user.EmailVerified = true
	require.NoError(t, f.userRepo.Update(ctx, user))

	_, _, err = f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.NoError(t, err)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.Register(context.Background(), f.tenant(t, testTenantID), testEmail, "short", auth.Client{})
	require.Error(t, err)
}

func TestExternalLoginByProviderLink(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)

	user := f.createUser(t, testTenantID, testEmail, testPassword, true)
	user.LinkIdentity(extidentity.ProviderGoogle, "g-123")
	require.NoError(t, f.userRepo.Update(ctx, user))

	creds, err := f.service.ExternalLogin(ctx, tenant, &extidentity.Identity{
		Provider:      extidentity.ProviderGoogle,
		ProviderID:    "g-123",
		Email:         "different@example.com", // link wins over email
		EmailVerified: true,
	}, auth.Client{})
	require.NoError(t, err)

	claims, err := f.issuer.Verify(creds.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestExternalLoginLinksExistingAccountByEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)
	user := f.createUser(t, testTenantID, testEmail, testPassword, true)

	_, err := f.service.ExternalLogin(ctx, tenant, &extidentity.Identity{
		Provider:      extidentity.ProviderGoogle,
		ProviderID:    "g-456",
		Email:         testEmail,
		EmailVerified: true,
	}, auth.Client{})
	require.NoError(t, err)

	linked, err := f.userRepo.GetByIdentity(ctx, tenant.ID, extidentity.ProviderGoogle, "g-456")
	require.NoError(t, err)
	assert.Equal(t, user.ID, linked.ID)
}

func TestExternalLoginCreatesNewUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)

	_, err := f.service.ExternalLogin(ctx, tenant, &extidentity.Identity{
		Provider:      extidentity.ProviderGoogle,
		ProviderID:    "g-789",
		Email:         "fresh@example.com",
		EmailVerified: true,
	}, auth.Client{})
	require.NoError(t, err)

	created, err := f.userRepo.GetByEmail(ctx, tenant.ID, "fresh@example.com")
	require.NoError(t, err)
	assert.True(t, created.EmailVerified)
	assert.False(t, created.HasPassword())
	assert.Equal(t, users.DefaultRoles(), created.Roles)
}

func TestExternalLoginUnverifiedEmailRejected(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.ExternalLogin(context.Background(), f.tenant(t, testTenantID), &extidentity.Identity{
		Provider:      extidentity.ProviderGoogle,
		ProviderID:    "g-000",
		Email:         testEmail,
		EmailVerified: false,
	}, auth.Client{})
	require.ErrorIs(t, err, auth.ErrExternalEmailUnverified)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)
	f.createUser(t, testTenantID, testEmail, testPassword, true)

	creds, _, err := f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, tenant, creds.RefreshSecret, auth.Client{}))
	require.NoError(t, f.service.Logout(ctx, tenant, creds.RefreshSecret, auth.Client{}))
	require.NoError(t, f.service.Logout(ctx, tenant, "unknown-secret", auth.Client{}))
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)
	user := f.createUser(t, testTenantID, testEmail, testPassword, true)

	first, _, err := f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.NoError(t, err)
	second, _, err := f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.NoError(t, err)

	require.NoError(t, f.service.LogoutAll(ctx, tenant, user, auth.Client{}))

	_, err = f.service.Refresh(ctx, tenant, first.RefreshSecret)
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)
	_, err = f.service.Refresh(ctx, tenant, second.RefreshSecret)
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)
	f.createUser(t, testTenantID, testEmail, testPassword, true)

	// Unknown address reports success.
	require.NoError(t, f.service.ForgotPassword(ctx, tenant, "nobody@example.com"))

	creds, _, err := f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.NoError(t, err)

	require.NoError(t, f.service.ForgotPassword(ctx, tenant, testEmail))

	// Pull the raw token's hash back out is impossible, so plant a known one.
	user, err := f.userRepo.GetByEmail(ctx, tenant.ID, users.NormalizeEmail(testEmail))
	require.NoError(t, err)
	user.ResetTokenHash = secrets.HashOpaque("known-reset-token")
	user.ResetTokenExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, f.userRepo.Update(ctx, user))

	require.NoError(t, f.service.ResetPassword(ctx, tenant, "known-reset-token", "NewPassword1", auth.Client{}))

	// Old password dead, new one works, standing sessions revoked.
	_, _, err = f.service.Login(ctx, tenant, testEmail, testPassword, auth.Client{})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = f.service.Login(ctx, tenant, testEmail, "NewPassword1", auth.Client{})
	require.NoError(t, err)
	_, err = f.service.Refresh(ctx, tenant, creds.RefreshSecret)
	require.ErrorIs(t, err, session.ErrSessionReuseDetected)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tenant := f.tenant(t, testTenantID)
	user := f.createUser(t, testTenantID, testEmail, testPassword, true)

	user.ResetTokenHash = secrets.HashOpaque("stale-token")
	user.ResetTokenExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, f.userRepo.Update(ctx, user))

	err := f.service.ResetPassword(ctx, tenant, "stale-token", "NewPassword1", auth.Client{})
	require.ErrorIs(t, err, auth.ErrInvalidResetToken)
}
