// Package extidentity verifies assertions from external identity providers
// and reduces them to a provider-neutral Identity. The rest of the service
// only ever consumes the resolved Identity.
package extidentity

import "context"

// Identity is a verified external identity: a stable provider-issued id and
// the email the provider asserts for it.
type Identity struct {
	Provider      string `json:"provider"`
	ProviderID    string `json:"provider_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

// Verifier checks a provider-signed assertion (an OIDC ID token) and
// returns the identity it attests to.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Identity, error)
}
