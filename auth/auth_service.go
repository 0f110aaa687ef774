// Package auth is the identity resolver: it authenticates a
// (tenant, credentials) or (tenant, external identity) pair to a user and
// delegates to the session engine to mint or revoke sessions. Every call
// takes the resolved tenant explicitly; nothing is read from ambient state.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/extidentity"
	"github.com/credentive/go-credential-service/secrets"
	"github.com/credentive/go-credential-service/session"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/users"
)

const (
	verificationTokenLength = 32
	verificationTokenTTL    = 24 * time.Hour
	resetTokenLength        = 32
	resetTokenTTL           = time.Hour
)

// Client carries request metadata for audit events only; it never
// influences an authentication decision.
type Client struct {
	IP        string
	UserAgent string
}

// Mailer delivers outbound notifications for the verification and reset
// flows. Delivery itself is an external collaborator.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Repos holds the repository dependencies of the Service.
type Repos struct {
	Users   users.UserRepo
	Tenants tenants.Repo
}

// Service resolves identities and drives the session engine.
type Service struct {
	repos   Repos
	engine  *session.Engine
	hasher  *secrets.Hasher
	audit   audit.Recorder
	mailer  Mailer
	baseURL string
	nowTime func() time.Time
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithMailer wires the outbound mailer used by the verification and
// password-reset flows.
func WithMailer(mailer Mailer, baseURL string) ServiceOption {
	return func(s *Service) {
		s.mailer = mailer
		s.baseURL = baseURL
	}
}

func NewService(repos Repos, engine *session.Engine, hasher *secrets.Hasher, recorder audit.Recorder, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[auth.NewService] Users repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[auth.NewService] Tenants repo is required")
	}
	if engine == nil {
		return nil, errors.New("[auth.NewService] session engine is required")
	}
	if hasher == nil {
		return nil, errors.New("[auth.NewService] hasher is required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}

	service := &Service{
		repos:   repos,
		engine:  engine,
		hasher:  hasher,
		audit:   recorder,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Login authenticates a tenant-scoped user by email and password and mints
// a session pair. A missing user, an account without a password hash and a
// wrong password all fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, tenant *tenants.Tenant, email, password string, client Client) (*session.Credentials, *users.User, error) {
	user, err := s.repos.Users.GetByEmail(ctx, tenant.ID, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.recordAudit(ctx, "", tenant.ID, audit.ActionLoginFailed, client)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, errors.Wrap(err, "[Service.Login] GetByEmail")
	}

	if !user.HasPassword() || !s.hasher.Verify(password, user.PasswordHash) {
		s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionLoginFailed, client)
		return nil, nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, nil, ErrEmailNotVerified
	}

	credentials, err := s.engine.Mint(ctx, user, tenant)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Service.Login] engine.Mint")
	}

	s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionLoginSuccess, client)
	return credentials, user, nil
}

// Register creates an unverified tenant-scoped user and emails a one-shot
// verification link. No session is minted until the email is verified.
func (s *Service) Register(ctx context.Context, tenant *tenants.Tenant, email, password string, client Client) error {
	normalized := users.NormalizeEmail(email)

	if _, err := s.repos.Users.GetByEmail(ctx, tenant.ID, normalized); err == nil {
		return users.ErrUserExists
	} else if !errors.Is(err, users.ErrNotFound) {
		return errors.Wrap(err, "[Service.Register] GetByEmail")
	}

	if err := users.ValidatePasswordStrength(password); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return errors.Wrap(err, "[Service.Register] hash password")
	}

	verifyToken, err := secrets.NewOpaque(verificationTokenLength)
	if err != nil {
		return errors.Wrap(err, "[Service.Register] generate verification token")
	}

	now := s.nowTime()
	user := &users.User{
		ID:                         uuid.New().String(),
		TenantID:                   tenant.ID,
		Email:                      normalized,
		PasswordHash:               passwordHash,
		Roles:                      users.DefaultRoles(),
		VerificationTokenHash:      secrets.HashOpaque(verifyToken),
		VerificationTokenExpiresAt: now.Add(verificationTokenTTL),
		CreatedAt:                  now,
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		return errors.Wrap(err, "[Service.Register] Create")
	}

	s.sendVerificationMail(ctx, user.Email, verifyToken)
	s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionUserRegistered, client)
	return nil
}

// VerifyEmail consumes a verification token and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, tenant *tenants.Tenant, rawToken string) error {
	user, err := s.repos.Users.GetByVerificationToken(ctx, tenant.ID, secrets.HashOpaque(rawToken))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return errors.Wrap(err, "[Service.VerifyEmail] GetByVerificationToken")
	}
	if s.nowTime().After(user.VerificationTokenExpiresAt) {
		return ErrInvalidVerificationToken
	}

	user.EmailVerified = true
	user.VerificationTokenHash = ""
	user.VerificationTokenExpiresAt = time.Time{}
	user.UpdatedAt = s.nowTime()
	return errors.Wrap(s.repos.Users.Update(ctx, user), "[Service.VerifyEmail] Update")
}

// ResendVerification issues a fresh verification token. It reports success
// for unknown and already-verified addresses alike, preventing enumeration.
func (s *Service) ResendVerification(ctx context.Context, tenant *tenants.Tenant, email string) error {
	user, err := s.repos.Users.GetByEmail(ctx, tenant.ID, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Service.ResendVerification] GetByEmail")
	}
	if user.EmailVerified {
		return nil
	}

	verifyToken, err := secrets.NewOpaque(verificationTokenLength)
	if err != nil {
		return errors.Wrap(err, "[Service.ResendVerification] generate token")
	}
	user.VerificationTokenHash = secrets.HashOpaque(verifyToken)
	user.VerificationTokenExpiresAt = s.nowTime().Add(verificationTokenTTL)
	user.UpdatedAt = s.nowTime()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return errors.Wrap(err, "[Service.ResendVerification] Update")
	}

	s.sendVerificationMail(ctx, user.Email, verifyToken)
	return nil
}

// ExternalLogin resolves a verified external identity to a tenant-scoped
// user and mints a session pair. Resolution order: existing provider link,
// then existing user by email (linking the identity), then a new
// passwordless, pre-verified user.
func (s *Service) ExternalLogin(ctx context.Context, tenant *tenants.Tenant, identity *extidentity.Identity, client Client) (*session.Credentials, error) {
	if !identity.EmailVerified {
		return nil, ErrExternalEmailUnverified
	}
	normalized := users.NormalizeEmail(identity.Email)

	user, err := s.repos.Users.GetByIdentity(ctx, tenant.ID, identity.Provider, identity.ProviderID)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.ExternalLogin] GetByIdentity")
	}

	if user == nil {
		user, err = s.repos.Users.GetByEmail(ctx, tenant.ID, normalized)
		switch {
		case err == nil:
			user.LinkIdentity(identity.Provider, identity.ProviderID)
			user.UpdatedAt = s.nowTime()
			if err := s.repos.Users.Update(ctx, user); err != nil {
				return nil, errors.Wrap(err, "[Service.ExternalLogin] link identity")
			}
		case errors.Is(err, users.ErrNotFound):
			now := s.nowTime()
			user = &users.User{
				ID:            uuid.New().String(),
				TenantID:      tenant.ID,
				Email:         normalized,
				EmailVerified: true, // the provider already verified it
				Roles:         users.DefaultRoles(),
				Identities:    []users.ExternalIdentity{{Provider: identity.Provider, ProviderID: identity.ProviderID}},
				CreatedAt:     now,
			}
			if err := s.repos.Users.Create(ctx, user); err != nil {
				return nil, errors.Wrap(err, "[Service.ExternalLogin] Create")
			}
		default:
			return nil, errors.Wrap(err, "[Service.ExternalLogin] GetByEmail")
		}
	}

	credentials, err := s.engine.Mint(ctx, user, tenant)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ExternalLogin] engine.Mint")
	}

	s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionOAuthLogin, client)
	return credentials, nil
}

// UserByID fetches a user, enforcing the tenant boundary: a user owned by
// another tenant is indistinguishable from a missing one.
func (s *Service) UserByID(ctx context.Context, tenant *tenants.Tenant, userID string) (*users.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UserByID] GetByID")
	}
	if user.TenantID != tenant.ID {
		return nil, users.ErrNotFound
	}
	return user, nil
}

// Refresh rotates a refresh secret into a fresh session pair.
func (s *Service) Refresh(ctx context.Context, tenant *tenants.Tenant, rawRefreshSecret string) (*session.Credentials, error) {
	if rawRefreshSecret == "" {
		return nil, session.ErrInvalidSession
	}
	return s.engine.Rotate(ctx, rawRefreshSecret, tenant)
}

// Logout revokes the single session identified by the refresh secret.
// Idempotent.
func (s *Service) Logout(ctx context.Context, tenant *tenants.Tenant, rawRefreshSecret string, client Client) error {
	if err := s.engine.RevokeOne(ctx, rawRefreshSecret); err != nil {
		return errors.Wrap(err, "[Service.Logout] RevokeOne")
	}
	s.recordAudit(ctx, "", tenant.ID, audit.ActionLogout, client)
	return nil
}

// LogoutAll revokes every session the user holds within the tenant.
func (s *Service) LogoutAll(ctx context.Context, tenant *tenants.Tenant, user *users.User, client Client) error {
	if err := s.engine.RevokeAll(ctx, user.ID, tenant.ID); err != nil {
		return errors.Wrap(err, "[Service.LogoutAll] RevokeAll")
	}
	s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionLogoutAll, client)
	return nil
}

// ForgotPassword issues a one-shot reset token. It reports success for
// unknown addresses, preventing enumeration.
func (s *Service) ForgotPassword(ctx context.Context, tenant *tenants.Tenant, email string) error {
	user, err := s.repos.Users.GetByEmail(ctx, tenant.ID, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "[Service.ForgotPassword] GetByEmail")
	}

	resetToken, err := secrets.NewOpaque(resetTokenLength)
	if err != nil {
		return errors.Wrap(err, "[Service.ForgotPassword] generate token")
	}
	user.ResetTokenHash = secrets.HashOpaque(resetToken)
	user.ResetTokenExpiresAt = s.nowTime().Add(resetTokenTTL)
	user.UpdatedAt = s.nowTime()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return errors.Wrap(err, "[Service.ForgotPassword] Update")
	}

	if s.mailer != nil {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", tenant.FrontendBaseURL, resetToken)
		body := fmt.Sprintf("<p>You requested a password reset.</p><p><a href=%q>Reset Password</a></p><p>This link expires in 1 hour.</p>", resetURL)
		if err := s.mailer.Send(ctx, user.Email, "Reset your password", body); err != nil {
			return errors.Wrap(err, "[Service.ForgotPassword] mailer.Send")
		}
	}
	return nil
}

// ResetPassword consumes a reset token, re-hashes the password and revokes
// the user's entire session family within the tenant.
func (s *Service) ResetPassword(ctx context.Context, tenant *tenants.Tenant, rawToken, newPassword string, client Client) error {
	user, err := s.repos.Users.GetByResetToken(ctx, tenant.ID, secrets.HashOpaque(rawToken))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return errors.Wrap(err, "[Service.ResetPassword] GetByResetToken")
	}
	if s.nowTime().After(user.ResetTokenExpiresAt) {
		return ErrInvalidResetToken
	}

	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] hash password")
	}

	user.PasswordHash = passwordHash
	user.ResetTokenHash = ""
	user.ResetTokenExpiresAt = time.Time{}
	user.UpdatedAt = s.nowTime()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] Update")
	}

	// A changed password distrusts every standing session.
	if err := s.engine.RevokeAll(ctx, user.ID, tenant.ID); err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] RevokeAll")
	}

	s.recordAudit(ctx, user.ID, tenant.ID, audit.ActionPasswordChanged, client)
	return nil
}

func (s *Service) sendVerificationMail(ctx context.Context, to, verifyToken string) {
	if s.mailer == nil {
		return
	}
	verifyURL := fmt.Sprintf("%s/api/auth/verify-email?token=%s", s.baseURL, verifyToken)
	body := fmt.Sprintf("<h3>Verify your email</h3><p>Thanks for registering.</p><p><a href=%q>Verify Email</a></p><p>This link expires in 24 hours.</p>", verifyURL)
	// Delivery is best effort; the user can always request a resend.
	_ = s.mailer.Send(ctx, to, "Verify your email address", body)
}

func (s *Service) recordAudit(ctx context.Context, userID, tenantID string, action audit.Action, client Client) {
	s.audit.Record(ctx, audit.Event{
		UserID:    userID,
		TenantID:  tenantID,
		Action:    action,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})
}
