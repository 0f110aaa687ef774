package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/credentive/go-credential-service/auth"
	"github.com/credentive/go-credential-service/session"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps domain errors to HTTP responses. A detected reuse
// responds exactly like any other invalid session: the presenter of a stolen
// secret learns nothing about what tripped.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, session.ErrSessionReuseDetected):
		writeError(w, http.StatusUnauthorized, "invalid session")
	case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, tenants.ErrInvalidTenantCredentials):
		writeError(w, http.StatusUnauthorized, "invalid app credentials")
	case errors.Is(err, auth.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "email not verified")
	case errors.Is(err, auth.ErrExternalEmailUnverified):
		writeError(w, http.StatusForbidden, "external identity email not verified")
	case errors.Is(err, users.ErrUserExists):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, tenants.ErrTenantExists):
		writeError(w, http.StatusConflict, "app already registered")
	case errors.Is(err, users.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidResetToken),
		errors.Is(err, auth.ErrInvalidVerificationToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrNotFound), errors.Is(err, tenants.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}
