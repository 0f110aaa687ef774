package tenants

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/secrets"
)

const (
	tenantSecretLength      = 32 // bytes of entropy in the raw tenant secret
	verificationTokenLength = 32
	verificationTokenTTL    = 24 * time.Hour
)

// Mailer delivers outbound notifications. Delivery is an external
// collaborator; the service only composes messages.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Registration is the input for registering a new tenant.
type Registration struct {
	Name            string
	Email           string
	FrontendBaseURL string
	AllowedOrigins  []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Credentials is the identifier/secret pair handed to a tenant exactly once
// at registration. The secret is never retrievable again.
type Credentials struct {
	TenantID     string `json:"app_id"`
	TenantSecret string `json:"app_secret"`
}

// Service handles tenant registration and the mutations allowed after
// creation (origin list and lifetime overrides).
type Service struct {
	repo    Repo
	hasher  *secrets.Hasher
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

func NewService(repo Repo, hasher *secrets.Hasher, mailer Mailer, baseURL string, options ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("[tenants.NewService] repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[tenants.NewService] hasher is required")
	}
	service := &Service{
		repo:    repo,
		hasher:  hasher,
		mailer:  mailer,
		baseURL: baseURL,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// CheckSecretDigests validates every stored tenant secret digest. A
// malformed digest is a configuration error and is surfaced here, at
// startup, rather than as a silent verification failure at request time.
func (s *Service) CheckSecretDigests(ctx context.Context) error {
	listed, err := s.repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "[Service.CheckSecretDigests] List")
	}
	for _, tenant := range listed {
		if err := secrets.CheckDigest(tenant.SecretHash); err != nil {
			return errors.Wrapf(err, "[Service.CheckSecretDigests] tenant %s", tenant.ID)
		}
	}
	return nil
}

// Register creates a new tenant and returns its credentials. The raw secret
// only exists in the return value; storage keeps a bcrypt hash.
func (s *Service) Register(ctx context.Context, registration Registration) (*Credentials, error) {
	if _, err := s.repo.GetByEmail(ctx, registration.Email); err == nil {
		return nil, ErrTenantExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Register] GetByEmail")
	}

	tenantSecret, err := secrets.NewOpaque(tenantSecretLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] generate secret")
	}
	secretHash, err := s.hasher.Hash(tenantSecret)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] hash secret")
	}

	verifyToken, err := secrets.NewOpaque(verificationTokenLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] generate verification token")
	}

	now := s.nowTime()
	tenant := &Tenant{
		ID:                         uuid.New().String(),
		Name:                       registration.Name,
		Email:                      registration.Email,
		SecretHash:                 secretHash,
		FrontendBaseURL:            registration.FrontendBaseURL,
		AllowedOrigins:             registration.AllowedOrigins,
		AccessTokenTTL:             registration.AccessTokenTTL,
		RefreshTokenTTL:            registration.RefreshTokenTTL,
		VerificationTokenHash:      secrets.HashOpaque(verifyToken),
		VerificationTokenExpiresAt: now.Add(verificationTokenTTL),
		CreatedAt:                  now,
	}
	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, errors.Wrap(err, "[Service.Register] Create")
	}

	if s.mailer != nil {
		verifyURL := fmt.Sprintf("%s/api/app/verify-email?token=%s", s.baseURL, verifyToken)
		body := fmt.Sprintf("<h3>Verify your app email</h3><p>App %q was registered with this address.</p><p><a href=%q>Verify Email</a></p><p>This link expires in 24 hours.</p>", registration.Name, verifyURL)
		if err := s.mailer.Send(ctx, registration.Email, "Verify your app email", body); err != nil {
			return nil, errors.Wrap(err, "[Service.Register] mailer.Send")
		}
	}

	return &Credentials{TenantID: tenant.ID, TenantSecret: tenantSecret}, nil
}

// VerifyEmail consumes a verification token and marks the tenant verified.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	tenant, err := s.repo.GetByVerificationToken(ctx, secrets.HashOpaque(rawToken))
	if err != nil {
		return errors.Wrap(err, "[Service.VerifyEmail] GetByVerificationToken")
	}
	if s.nowTime().After(tenant.VerificationTokenExpiresAt) {
		return ErrNotFound
	}
	tenant.EmailVerified = true
	tenant.VerificationTokenHash = ""
	tenant.VerificationTokenExpiresAt = time.Time{}
	tenant.UpdatedAt = s.nowTime()
	return errors.Wrap(s.repo.Update(ctx, tenant), "[Service.VerifyEmail] Update")
}

// UpdateOrigins replaces the tenant's allowed-origin list. Origins and
// lifetime overrides are the only mutable tenant attributes.
func (s *Service) UpdateOrigins(ctx context.Context, tenantID string, origins []string) error {
	tenant, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "[Service.UpdateOrigins] Get")
	}
	tenant.AllowedOrigins = origins
	tenant.UpdatedAt = s.nowTime()
	return errors.Wrap(s.repo.Update(ctx, tenant), "[Service.UpdateOrigins] Update")
}

// UpdateTokenTTLs replaces the tenant's lifetime overrides. Zero keeps the
// global default for that lifetime.
func (s *Service) UpdateTokenTTLs(ctx context.Context, tenantID string, accessTTL, refreshTTL time.Duration) error {
	tenant, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "[Service.UpdateTokenTTLs] Get")
	}
	tenant.AccessTokenTTL = accessTTL
	tenant.RefreshTokenTTL = refreshTTL
	tenant.UpdatedAt = s.nowTime()
	return errors.Wrap(s.repo.Update(ctx, tenant), "[Service.UpdateTokenTTLs] Update")
}
