package session

import "errors"

var (
	// ErrNotFound is returned by Repo implementations for an unknown hash.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidSession covers an unknown refresh secret and a tenant
	// mismatch. The two cases are deliberately indistinguishable to callers.
	ErrInvalidSession = errors.New("invalid session")

	// ErrSessionReuseDetected means a revoked or expired refresh secret was
	// presented again. By the time this error is returned, every session for
	// the owning user and tenant has already been revoked.
	ErrSessionReuseDetected = errors.New("session reuse detected")

	// ErrStoreUnavailable is a transient persistence failure. The engine
	// performs no retries; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
