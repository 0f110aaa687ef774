package server

import "github.com/credentive/go-credential-service/users"

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, s.HealthHandler())

	// App (tenant) self-service
	s.RegisterRouteHandler("POST "+RouteAppRegister, ChainMiddleware(s.AppRegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAppVerifyEmail, ChainMiddleware(s.AppVerifyEmailHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAppOrigins, ChainMiddleware(s.AppOriginsHandler(), s.APIMiddleware(s.TenantAuthMiddleware)...))
	s.RegisterRouteHandler("PUT "+RouteAppTokenTTLs, ChainMiddleware(s.AppTokenTTLsHandler(), s.APIMiddleware(s.TenantAuthMiddleware)...))

	// End-user auth; every route is tenant-authenticated, credential
	// endpoints are additionally rate limited per client IP.
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware(s.TenantAuthMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.TenantAuthMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthLogoutAll, ChainMiddleware(s.LogoutAllHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.BearerAuthMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuthVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.APIMiddleware(s.TenantAuthMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthResendVerification, ChainMiddleware(s.ResendVerificationHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthGoogle, ChainMiddleware(s.GoogleLoginHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.TenantAuthMiddleware, s.BearerAuthMiddleware, s.RequirePermissions(users.PermissionUserRead))...))
}
