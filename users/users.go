// Package users holds the user model and the flat role to permission
// mapping. A user is owned by exactly one tenant; the same email address may
// exist under different tenants as distinct users.
package users

import (
	"strings"
	"time"
)

// ExternalIdentity is a link between a user and an identity issued by an
// external provider (e.g. Google). Unique per tenant.
type ExternalIdentity struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"provider_id"`
}

type User struct {
	ID            string             `json:"id,omitempty"`
	TenantID      string             `json:"tenant_id,omitempty"`
	Email         string             `json:"email,omitempty"`
	PasswordHash  string             `json:"-"` // empty for external-identity-only accounts
	EmailVerified bool               `json:"email_verified,omitempty"`
	Roles         []string           `json:"roles,omitempty"`
	Identities    []ExternalIdentity `json:"identities,omitempty"`

	// One-shot hashed tokens for email verification and password reset.
	VerificationTokenHash      string    `json:"-"`
	VerificationTokenExpiresAt time.Time `json:"-"`
	ResetTokenHash             string    `json:"-"`
	ResetTokenExpiresAt        time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NormalizeEmail canonicalizes an email address for the composite
// (email, tenant) uniqueness check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IdentityFor returns the linked identity for a provider, or nil.
func (u *User) IdentityFor(provider string) *ExternalIdentity {
	for i := range u.Identities {
		if u.Identities[i].Provider == provider {
			return &u.Identities[i]
		}
	}
	return nil
}

// LinkIdentity attaches an external identity to the user. Linking the same
// provider twice is a no-op.
func (u *User) LinkIdentity(provider, providerID string) {
	if u.IdentityFor(provider) != nil {
		return
	}
	u.Identities = append(u.Identities, ExternalIdentity{Provider: provider, ProviderID: providerID})
}
