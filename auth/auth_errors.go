package auth

import "errors"

var (
	// ErrInvalidCredentials deliberately covers "no such user", "account has
	// no password" and "wrong password" so responses cannot be used to
	// enumerate users.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified blocks password login until the address is
	// verified. Distinct from ErrInvalidCredentials: it is not a
	// secret-guessing signal.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrExternalEmailUnverified means the upstream provider's assertion
	// carries an unverified email.
	ErrExternalEmailUnverified = errors.New("external identity email not verified")

	// ErrInvalidResetToken covers unknown and expired password-reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired password reset token")

	// ErrInvalidVerificationToken covers unknown and expired email
	// verification tokens.
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
)
