package extidentity

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	ProviderGoogle = "google"

	googleIssuer = "https://accounts.google.com"
)

var _ Verifier = (*GoogleVerifier)(nil)

// GoogleVerifier validates Google-issued ID tokens against Google's OIDC
// discovery document and JWKS.
type GoogleVerifier struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewGoogleVerifier performs OIDC discovery for Google. redirectURL may be
// empty when only direct ID-token verification is needed.
func NewGoogleVerifier(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewGoogleVerifier] oidc.NewProvider")
	}
	return &GoogleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// Verify checks the signature, issuer, audience and expiry of a raw Google
// ID token and returns the identity it asserts.
func (g *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[GoogleVerifier.Verify] verify id token")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[GoogleVerifier.Verify] parse claims")
	}

	return &Identity{
		Provider:      ProviderGoogle,
		ProviderID:    idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// Exchange trades an authorization code for the ID token embedded in the
// token response, then verifies it like Verify does.
func (g *GoogleVerifier) Exchange(ctx context.Context, code string) (*Identity, error) {
	oauth2Token, err := g.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "[GoogleVerifier.Exchange] code exchange")
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[GoogleVerifier.Exchange] token response missing id_token")
	}
	return g.Verify(ctx, rawIDToken)
}
