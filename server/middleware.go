package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
	"github.com/credentive/go-credential-service/users"
)

type contextKey string

const (
	tenantContextKey contextKey = "tenant"
	claimsContextKey contextKey = "claims"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the base chain for every JSON route.
func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		s.RecoverMiddleware,
		s.LoggingMiddleware,
		s.TimeoutMiddleware,
		s.CorsMiddleware,
	}
	return append(chained, mw...)
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next(w, r)
	}
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env == "DEV" {
			logRoute(r.Method, r.URL.Path)
		}
		next(w, r)
	}
}

// TimeoutMiddleware bounds each request by the configured store timeout, so
// a stalled backend cannot pin handler goroutines.
func (s *Server) TimeoutMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetStoreTimeout())
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// CorsMiddleware answers preflight requests. Per-tenant origin checks need
// the tenant's credentials, which preflights do not carry, so OPTIONS is
// answered permissively; the actual response headers are set after tenant
// resolution in TenantAuthMiddleware.
func (s *Server) CorsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", s.config.GetAllowedMethods())
			w.Header().Set("Access-Control-Allow-Headers", s.config.GetAllowedHeaders())
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// TenantAuthMiddleware authenticates the calling application from the
// X-App-ID/X-App-Secret headers and stores the tenant in the request
// context. Cross-origin responses only carry CORS headers when the origin is
// on the tenant's allow list.
func (s *Server) TenantAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.resolver.Resolve(r.Context(), r.Header.Get("X-App-ID"), r.Header.Get("X-App-Secret"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if origin := r.Header.Get("Origin"); origin != "" && tenant.AllowsOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		next(w, r.WithContext(ctx))
	}
}

// BearerAuthMiddleware verifies the Authorization bearer token and stores
// its claims in the request context. It must run after
// TenantAuthMiddleware: a token minted for one tenant never works under
// another.
func (s *Server) BearerAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.issuer.Verify(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if tenant := tenantFrom(r.Context()); tenant == nil || claims.TenantID != tenant.ID {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RequirePermissions gates a route on the caller's role-derived
// permissions. It must run after BearerAuthMiddleware.
func (s *Server) RequirePermissions(need ...users.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r.Context())
			if claims == nil || !users.RequireAll(users.PermissionsOf(claims.Roles), need...) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}

// RateLimitMiddleware throttles per client IP. Redis trouble fails open:
// losing the throttle is better than losing logins.
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next(w, r)
			return
		}
		decision, err := s.limiter.Allow(r.Context(), clientInfo(r).IP)
		if err != nil {
			s.logger.Warn().Err(err).Msg("rate limiter unavailable")
			next(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func tenantFrom(ctx context.Context) *tenants.Tenant {
	tenant, _ := ctx.Value(tenantContextKey).(*tenants.Tenant)
	return tenant
}

func claimsFrom(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	return claims
}
