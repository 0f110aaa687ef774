package server

import (
	"net/http"
	"time"

	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/tenants"
)

type appRegisterRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	FrontendBaseURL string   `json:"frontend_base_url"`
	AllowedOrigins  []string `json:"allowed_origins"`
	AccessTokenTTL  string   `json:"access_token_ttl"`
	RefreshTokenTTL string   `json:"refresh_token_ttl"`
}

// AppRegisterHandler registers a new application. The returned app_secret is
// shown exactly once.
func (s *Server) AppRegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appRegisterRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" || req.Email == "" {
			writeError(w, http.StatusBadRequest, "name and email are required")
			return
		}

		accessTTL, refreshTTL, err := parseTTLOverrides(req.AccessTokenTTL, req.RefreshTokenTTL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		credentials, err := s.tenants.Register(r.Context(), tenants.Registration{
			Name:            req.Name,
			Email:           req.Email,
			FrontendBaseURL: req.FrontendBaseURL,
			AllowedOrigins:  req.AllowedOrigins,
			AccessTokenTTL:  accessTTL,
			RefreshTokenTTL: refreshTTL,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, credentials)
	}
}

// AppVerifyEmailHandler consumes the app's emailed verification token.
func (s *Server) AppVerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := r.URL.Query().Get("token")
		if rawToken == "" {
			writeError(w, http.StatusBadRequest, "token is required")
			return
		}
		if err := s.tenants.VerifyEmail(r.Context(), rawToken); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "app email verified"})
	}
}

type appOriginsRequest struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// AppOriginsHandler replaces the calling app's allowed-origin list.
func (s *Server) AppOriginsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appOriginsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.tenants.UpdateOrigins(r.Context(), tenant.ID, req.AllowedOrigins); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "origins updated"})
	}
}

type appTokenTTLsRequest struct {
	AccessTokenTTL  string `json:"access_token_ttl"`
	RefreshTokenTTL string `json:"refresh_token_ttl"`
}

// AppTokenTTLsHandler replaces the calling app's lifetime overrides. An
// empty value clears the override back to the global default.
func (s *Server) AppTokenTTLsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appTokenTTLsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		accessTTL, refreshTTL, err := parseTTLOverrides(req.AccessTokenTTL, req.RefreshTokenTTL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.tenants.UpdateTokenTTLs(r.Context(), tenant.ID, accessTTL, refreshTTL); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "token lifetimes updated"})
	}
}

func parseTTLOverrides(access, refresh string) (accessTTL, refreshTTL time.Duration, err error) {
	if access != "" {
		if accessTTL, err = config.ParseTTL(access); err != nil {
			return 0, 0, err
		}
	}
	if refresh != "" {
		if refreshTTL, err = config.ParseTTL(refresh); err != nil {
			return 0, 0, err
		}
	}
	return accessTTL, refreshTTL, nil
}
