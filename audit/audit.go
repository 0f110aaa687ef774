// Package audit records security events emitted by the session engine and
// the identity resolver. Recording is strictly best-effort: it never blocks
// and never fails the caller's primary operation.
package audit

import (
	"context"
	"time"
)

// Action identifies the kind of security event.
type Action string

const (
	ActionUserRegistered     Action = "USER_REGISTERED"
	ActionLoginSuccess       Action = "LOGIN_SUCCESS"
	ActionLoginFailed        Action = "LOGIN_FAILED"
	ActionTokenRefresh       Action = "TOKEN_REFRESH"
	ActionTokenRevoked       Action = "TOKEN_REVOKED"
	ActionTokenReuseDetected Action = "TOKEN_REUSE_DETECTED"
	ActionLogout             Action = "LOGOUT"
	ActionLogoutAll          Action = "LOGOUT_ALL"
	ActionPasswordChanged    Action = "PASSWORD_CHANGED"
	ActionOAuthLogin         Action = "OAUTH_LOGIN"
)

// Event is a single audit record. UserID may be empty when the event is not
// attributable to a known user (e.g. a failed login for an unknown email).
type Event struct {
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	Action    Action            `json:"action"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	At        time.Time         `json:"at"`
}

// Recorder accepts audit events, fire-and-forget.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Nop discards every event. Useful in tests.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) Record(context.Context, Event) {}
