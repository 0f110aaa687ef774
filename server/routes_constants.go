package server

// Route path constants. All routes are defined here to prevent typos.
const (
	// End-user auth routes (tenant-authenticated)
	RouteAuthRegister           = "/api/auth/register"
	RouteAuthLogin              = "/api/auth/login"
	RouteAuthRefresh            = "/api/auth/refresh"
	RouteAuthLogout             = "/api/auth/logout"
	RouteAuthLogoutAll          = "/api/auth/logout-all"
	RouteAuthVerifyEmail        = "/api/auth/verify-email"
	RouteAuthResendVerification = "/api/auth/resend-verification"
	RouteAuthForgotPassword     = "/api/auth/forgot-password"
	RouteAuthResetPassword      = "/api/auth/reset-password"
	RouteAuthGoogle             = "/api/oauth/google"
	RouteAuthMe                 = "/api/auth/me"

	// App (tenant) management routes
	RouteAppRegister    = "/api/app/register"
	RouteAppVerifyEmail = "/api/app/verify-email"
	RouteAppOrigins     = "/api/app/origins"
	RouteAppTokenTTLs   = "/api/app/token-ttls"

	RouteHealth = "/healthz"
)
