// Package tenants manages registered client applications. A tenant is the
// isolation boundary for users and sessions: every user, refresh session and
// access credential is scoped to exactly one tenant.
package tenants

import "time"

type Tenant struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	SecretHash      string   `json:"-"` // bcrypt digest; the raw secret is returned once at registration
	FrontendBaseURL string   `json:"frontend_base_url"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`

	// Per-tenant lifetime overrides. Zero means "use the global default".
	AccessTokenTTL  time.Duration `json:"access_token_ttl,omitempty"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl,omitempty"`

	EmailVerified              bool      `json:"email_verified,omitempty"`
	VerificationTokenHash      string    `json:"-"`
	VerificationTokenExpiresAt time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ResolveAccessTTL returns the tenant's access-credential lifetime, falling
// back to the global default. The tenant override wins.
func (t *Tenant) ResolveAccessTTL(defaultTTL time.Duration) time.Duration {
	if t.AccessTokenTTL > 0 {
		return t.AccessTokenTTL
	}
	return defaultTTL
}

// ResolveRefreshTTL returns the tenant's refresh-session lifetime, falling
// back to the global default.
func (t *Tenant) ResolveRefreshTTL(defaultTTL time.Duration) time.Duration {
	if t.RefreshTokenTTL > 0 {
		return t.RefreshTokenTTL
	}
	return defaultTTL
}

// AllowsOrigin reports whether a web origin is on the tenant's allow list.
func (t *Tenant) AllowsOrigin(origin string) bool {
	for _, allowed := range t.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
