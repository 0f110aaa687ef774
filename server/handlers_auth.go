package server

import (
	"net/http"

	"github.com/credentive/go-credential-service/extidentity"
	"github.com/credentive/go-credential-service/users"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterHandler creates an unverified user under the calling tenant.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.Register(r.Context(), tenant, req.Email, req.Password, clientInfo(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"message": "registered, check your email to verify the address",
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates a user and returns a credential pair.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		credentials, _, err := s.auth.Login(r.Context(), tenant, req.Email, req.Password, clientInfo(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, credentials)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshHandler rotates a refresh token. A replayed or unknown token gets
// the same 401 as any stale session.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		credentials, err := s.auth.Refresh(r.Context(), tenant, req.RefreshToken)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, credentials)
	}
}

// LogoutHandler revokes the presented refresh token. Always succeeds.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.Logout(r.Context(), tenant, req.RefreshToken, clientInfo(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}

// LogoutAllHandler revokes every session of the authenticated user within
// the calling tenant.
func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantFrom(r.Context())
		claims := claimsFrom(r.Context())

		user := &users.User{ID: claims.UserID, TenantID: tenant.ID}
		if err := s.auth.LogoutAll(r.Context(), tenant, user, clientInfo(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "all sessions revoked"})
	}
}

// VerifyEmailHandler consumes the emailed verification token.
func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawToken := r.URL.Query().Get("token")
		if rawToken == "" {
			writeError(w, http.StatusBadRequest, "token is required")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.VerifyEmail(r.Context(), tenant, rawToken); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "email verified"})
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerificationHandler reissues a verification token. The response is
// identical whether or not the address exists.
func (s *Server) ResendVerificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.ResendVerification(r.Context(), tenant, req.Email); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "if the address is registered, a verification email has been sent",
		})
	}
}

// ForgotPasswordHandler issues a reset token. The response is identical
// whether or not the address exists.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.ForgotPassword(r.Context(), tenant, req.Email); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "if the address is registered, a reset email has been sent",
		})
	}
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPasswordHandler consumes a reset token and sets a new password.
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		tenant := tenantFrom(r.Context())
		if err := s.auth.ResetPassword(r.Context(), tenant, req.Token, req.NewPassword, clientInfo(r)); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "password updated, please log in again"})
	}
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
	Code    string `json:"code"`
}

// GoogleLoginHandler signs a user in from a Google ID token or an
// authorization code.
func (s *Server) GoogleLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.google == nil {
			writeError(w, http.StatusNotImplemented, "google sign-in is not configured")
			return
		}

		var req googleLoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var (
			identity *extidentity.Identity
			err      error
		)
		switch {
		case req.IDToken != "":
			identity, err = s.google.Verify(r.Context(), req.IDToken)
		case req.Code != "":
			identity, err = s.google.Exchange(r.Context(), req.Code)
		default:
			writeError(w, http.StatusBadRequest, "id_token or code is required")
			return
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid google credential")
			return
		}

		tenant := tenantFrom(r.Context())
		credentials, loginErr := s.auth.ExternalLogin(r.Context(), tenant, identity, clientInfo(r))
		if loginErr != nil {
			writeServiceError(w, loginErr)
			return
		}
		writeJSON(w, http.StatusOK, credentials)
	}
}

type meResponse struct {
	User        *users.User        `json:"user"`
	Permissions []users.Permission `json:"permissions"`
}

// MeHandler returns the authenticated user's profile and effective
// permissions.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		user, err := s.auth.UserByID(r.Context(), tenantFrom(r.Context()), claims.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			User:        user,
			Permissions: users.PermissionsOf(user.Roles),
		})
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
