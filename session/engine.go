package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/secrets"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
)

// Credentials is what a successful mint or rotation hands back to the
// caller: one signed access credential and one raw refresh secret.
type Credentials struct {
	AccessToken   string `json:"access_token"`
	RefreshSecret string `json:"refresh_token"`
}

// Engine orchestrates the refresh-session state machine. It holds no session
// state in memory; every operation works against the shared store, so
// concurrency correctness reduces to the store's conditional-revoke
// atomicity.
type Engine struct {
	sessions Repo
	users    users.UserRepo
	issuer   *token.Issuer
	config   config.AuthConfig
	audit    audit.Recorder
	nowTime  func() time.Time
}

type EngineOption func(*Engine)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

func NewEngine(sessions Repo, userRepo users.UserRepo, issuer *token.Issuer, cfg config.AuthConfig, recorder audit.Recorder, options ...EngineOption) (*Engine, error) {
	if sessions == nil {
		return nil, errors.New("[NewEngine] session repo is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewEngine] user repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewEngine] token issuer is required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	engine := &Engine{
		sessions: sessions,
		users:    userRepo,
		issuer:   issuer,
		config:   cfg,
		audit:    recorder,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(engine)
	}
	return engine, nil
}

// Mint creates exactly one new live refresh session and one access
// credential for the user within the tenant. No prior session state is
// touched: a fresh login coexists with existing device lineages.
func (e *Engine) Mint(ctx context.Context, user *users.User, tenant *tenants.Tenant) (*Credentials, error) {
	rawSecret, err := secrets.NewOpaque(e.config.GetRefreshSecretLength())
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Mint] generate refresh secret")
	}

	now := e.nowTime()
	record := &RefreshSession{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		TenantID:   tenant.ID,
		SecretHash: secrets.HashOpaque(rawSecret),
		ExpiresAt:  now.Add(tenant.ResolveRefreshTTL(e.config.GetDefaultRefreshTokenTTL())),
		CreatedAt:  now,
	}
	if err := e.sessions.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "[Engine.Mint] sessions.Create")
	}

	accessToken, err := e.issuer.Issue(user.ID, tenant.ID, user.Roles, tenant.ResolveAccessTTL(e.config.GetDefaultAccessTokenTTL()))
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Mint] issuer.Issue")
	}

	return &Credentials{AccessToken: accessToken, RefreshSecret: rawSecret}, nil
}

// Rotate exchanges a live refresh secret for a fresh session pair,
// invalidating the presented secret. Presenting a secret that is unknown
// fails with ErrInvalidSession. Presenting one that is revoked or expired is
// a theft signal: the entire session family for that user and tenant is
// revoked before ErrSessionReuseDetected is returned. A record owned by a
// different tenant is treated exactly like an unknown secret, so existence
// never leaks across tenants.
func (e *Engine) Rotate(ctx context.Context, rawSecret string, tenant *tenants.Tenant) (*Credentials, error) {
	record, err := e.sessions.GetByHash(ctx, secrets.HashOpaque(rawSecret))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, errors.Wrap(err, "[Engine.Rotate] sessions.GetByHash")
	}

	if record.TenantID != tenant.ID {
		return nil, ErrInvalidSession
	}

	if !record.Live(e.nowTime()) {
		return nil, e.respondToReuse(ctx, record)
	}

	// Revoke-iff-live: of two concurrent rotations presenting the same
	// secret, exactly one wins this write. The loser is handled as if it
	// had found the record already revoked.
	revoked, err := e.sessions.Revoke(ctx, record.SecretHash)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Rotate] sessions.Revoke")
	}
	if !revoked {
		return nil, e.respondToReuse(ctx, record)
	}

	user, err := e.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, errors.Wrap(err, "[Engine.Rotate] users.GetByID")
	}

	credentials, err := e.Mint(ctx, user, tenant)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Rotate] mint replacement")
	}

	e.audit.Record(ctx, audit.Event{
		UserID:   record.UserID,
		TenantID: record.TenantID,
		Action:   audit.ActionTokenRefresh,
	})
	return credentials, nil
}

// respondToReuse is the compromise response: a dead secret was replayed, so
// the attacker and the legitimate holder may be racing on the same chain.
// Only revoking the whole user+tenant family guarantees the attacker loses
// all standing sessions too. The revocation lands before the error does.
func (e *Engine) respondToReuse(ctx context.Context, record *RefreshSession) error {
	if err := e.sessions.RevokeAllForUser(ctx, record.UserID, record.TenantID); err != nil {
		return errors.Wrap(err, "[Engine.respondToReuse] sessions.RevokeAllForUser")
	}
	e.audit.Record(ctx, audit.Event{
		UserID:   record.UserID,
		TenantID: record.TenantID,
		Action:   audit.ActionTokenReuseDetected,
	})
	return ErrSessionReuseDetected
}

// RevokeOne revokes the session identified by the raw secret. Idempotent:
// an unknown or already-revoked secret is success, not an error.
func (e *Engine) RevokeOne(ctx context.Context, rawSecret string) error {
	if rawSecret == "" {
		return nil
	}
	if _, err := e.sessions.Revoke(ctx, secrets.HashOpaque(rawSecret)); err != nil {
		return errors.Wrap(err, "[Engine.RevokeOne] sessions.Revoke")
	}
	return nil
}

// RevokeAll revokes every live session for the user within the tenant.
func (e *Engine) RevokeAll(ctx context.Context, userID, tenantID string) error {
	if err := e.sessions.RevokeAllForUser(ctx, userID, tenantID); err != nil {
		return errors.Wrap(err, "[Engine.RevokeAll] sessions.RevokeAllForUser")
	}
	return nil
}
