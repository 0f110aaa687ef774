package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/auth"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/secrets"
	"github.com/credentive/go-credential-service/server"
	"github.com/credentive/go-credential-service/session"
	sessionrepofake "github.com/credentive/go-credential-service/session/repofake"
	"github.com/credentive/go-credential-service/tenants"
	tenantrepofakes "github.com/credentive/go-credential-service/tenants/repofakes"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
	userrepofake "github.com/credentive/go-credential-service/users/repofake"
)

type serverFixture struct {
	server     *server.Server
	userRepo   *userrepofake.FakeUserRepo
	tenantRepo *tenantrepofakes.FakeTenantRepo
	appID      string
	appSecret  string
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	userRepo := userrepofake.NewFakeUserRepo()
	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	sessionRepo := sessionrepofake.NewFakeSessionRepo()

	hasher, err := secrets.NewHasher(4)
	require.NoError(t, err)
	issuer, err := token.NewIssuer("server-test-secret")
	require.NoError(t, err)

	engine, err := session.NewEngine(sessionRepo, userRepo, issuer, config.Auth{}, audit.Nop{})
	require.NoError(t, err)
	authService, err := auth.NewService(auth.Repos{Users: userRepo, Tenants: tenantRepo}, engine, hasher, audit.Nop{})
	require.NoError(t, err)
	tenantService, err := tenants.NewService(tenantRepo, hasher, nil, "http://localhost:8080")
	require.NoError(t, err)

	srv, err := server.New(config.New(), server.Deps{
		Auth:     authService,
		Tenants:  tenantService,
		Resolver: tenants.NewResolver(tenantRepo, hasher),
		Issuer:   issuer,
	}, zerolog.Nop())
	require.NoError(t, err)

	credentials, err := tenantService.Register(context.Background(), tenants.Registration{
		Name:  "Test App",
		Email: "ops@test.example",
	})
	require.NoError(t, err)

	return &serverFixture{
		server:     srv,
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		appID:      credentials.TenantID,
		appSecret:  credentials.TenantSecret,
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, tenantAuth bool, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenantAuth {
		req.Header.Set("X-App-ID", f.appID)
		req.Header.Set("X-App-Secret", f.appSecret)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) createVerifiedUser(t *testing.T, email, password string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, server.RouteAuthRegister,
		map[string]string{"email": email, "password": password}, true, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	user, err := f.userRepo.GetByEmail(context.Background(), f.appID, users.NormalizeEmail(email))
	require.NoError(t, err)
	user.EmailVerified = true
	require.NoError(t, f.userRepo.Update(context.Background(), user))
}

type credentialsResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func TestMissingAppCredentialsRejected(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "a@b.c", "password": "x"}, false, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	f := setupServer(t)
	f.createVerifiedUser(t, "jane@example.com", "Password123")

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "jane@example.com", "password": "Password123"}, true, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var creds credentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creds))
	require.NotEmpty(t, creds.AccessToken)
	require.NotEmpty(t, creds.RefreshToken)

	// Rotate once.
	rec = f.do(t, http.MethodPost, server.RouteAuthRefresh,
		map[string]string{"refresh_token": creds.RefreshToken}, true, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated credentialsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))

	// Replaying the consumed token reads as a plain invalid session.
	rec = f.do(t, http.MethodPost, server.RouteAuthRefresh,
		map[string]string{"refresh_token": creds.RefreshToken}, true, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid session")

	// The reuse nuked the family, so the rotated token is dead too.
	rec = f.do(t, http.MethodPost, server.RouteAuthRefresh,
		map[string]string{"refresh_token": rotated.RefreshToken}, true, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid session")
}

func TestLoginWrongPasswordIs401(t *testing.T) {
	f := setupServer(t)
	f.createVerifiedUser(t, "jane@example.com", "Password123")

	rec := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "jane@example.com", "password": "Nope12345"}, true, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestUnverifiedLoginIs403(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthRegister,
		map[string]string{"email": "new@example.com", "password": "Password123"}, true, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "new@example.com", "password": "Password123"}, true, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDuplicateRegistrationIs409(t *testing.T) {
	f := setupServer(t)
	f.createVerifiedUser(t, "jane@example.com", "Password123")

	rec := f.do(t, http.MethodPost, server.RouteAuthRegister,
		map[string]string{"email": "jane@example.com", "password": "Password123"}, true, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWeakPasswordIs400(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, server.RouteAuthRegister,
		map[string]string{"email": "jane@example.com", "password": "short"}, true, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresBearerToken(t *testing.T) {
	f := setupServer(t)
	f.createVerifiedUser(t, "jane@example.com", "Password123")

	rec := f.do(t, http.MethodGet, server.RouteAuthMe, nil, true, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := f.do(t, http.MethodPost, server.RouteAuthLogin,
		map[string]string{"email": "jane@example.com", "password": "Password123"}, true, "")
	require.Equal(t, http.StatusOK, login.Code)
	var creds credentialsResponse
	require.NoError(t, json.Unmarshal(login.Body.Bytes(), &creds))

	rec = f.do(t, http.MethodGet, server.RouteAuthMe, nil, true, creds.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "jane@example.com")
}

func TestAppRegistrationAndOriginUpdate(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, server.RouteAppRegister, map[string]any{
		"name":             "Second App",
		"email":            "ops2@test.example",
		"access_token_ttl": "15m",
	}, false, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var creds tenants.Credentials
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creds))
	require.NotEmpty(t, creds.TenantID)
	require.NotEmpty(t, creds.TenantSecret)

	// Update origins as the new app.
	req := httptest.NewRequest(http.MethodPut, server.RouteAppOrigins,
		bytes.NewBufferString(`{"allowed_origins":["https://app.example"]}`))
	req.Header.Set("X-App-ID", creds.TenantID)
	req.Header.Set("X-App-Secret", creds.TenantSecret)
	out := httptest.NewRecorder()
	f.server.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())

	tenant, err := f.tenantRepo.Get(context.Background(), creds.TenantID)
	require.NoError(t, err)
	assert.True(t, tenant.AllowsOrigin("https://app.example"))
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, server.RouteHealth, nil, false, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
