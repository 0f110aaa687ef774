// Package token creates and verifies signed access credentials. An access
// credential is a short-lived, self-contained JWT carrying the user ID,
// tenant ID and role claims; verification is a pure cryptographic transform
// and never touches storage.
package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Claims is the verified content of an access credential.
type Claims struct {
	UserID    string
	TenantID  string
	Roles     []string
	ExpiresAt time.Time
}

// Issuer signs and verifies access credentials with an HMAC-SHA256 secret.
type Issuer struct {
	secret  []byte
	nowTime func() time.Time
}

// IssuerOption modifies an Issuer instance.
type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowTime = nowFunc
	}
}

// NewIssuer creates an Issuer signing with the given secret.
func NewIssuer(secret string, options ...IssuerOption) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("[NewIssuer] signing secret is required")
	}
	issuer := &Issuer{
		secret:  []byte(secret),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(issuer)
	}
	return issuer, nil
}

// Issue creates a signed access credential for the user within the tenant,
// valid for ttl.
func (i *Issuer) Issue(userID, tenantID string, roles []string, ttl time.Duration) (string, error) {
	now := i.nowTime()
	claims := jwtlib.MapClaims{
		"sub":    userID,
		"tenant": tenantID,
		"roles":  roles,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
		"jti":    uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] SignedString")
	}
	return signed, nil
}

// Verify checks the signature and expiry of a raw access credential and
// returns its claims. Fails with ErrExpired or ErrInvalidToken.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	parsed, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwtlib.WithTimeFunc(i.nowTime))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mapClaims)
}

func claimsFromMap(mapClaims jwtlib.MapClaims) (*Claims, error) {
	sub, _ := mapClaims["sub"].(string)
	tenant, _ := mapClaims["tenant"].(string)
	if sub == "" || tenant == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		UserID:   sub,
		TenantID: tenant,
	}
	if rawRoles, ok := mapClaims["roles"].([]any); ok {
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims, nil
}
