// Package server is the JSON/HTTP surface of the credential service. All
// state-changing decisions live in the auth, session and tenants packages;
// handlers only decode requests, resolve the calling tenant and translate
// errors to status codes.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/credentive/go-credential-service/auth"
	"github.com/credentive/go-credential-service/extidentity"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/internal/ratelimit"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
)

// Deps bundles everything the server needs. Google and Limiter are optional;
// their routes and throttling degrade gracefully when absent.
type Deps struct {
	Auth     *auth.Service
	Tenants  *tenants.Service
	Resolver *tenants.Resolver
	Issuer   *token.Issuer
	Google   *extidentity.GoogleVerifier
	Limiter  *ratelimit.Limiter
}

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	logger zerolog.Logger

	auth     *auth.Service
	tenants  *tenants.Service
	resolver *tenants.Resolver
	issuer   *token.Issuer
	google   *extidentity.GoogleVerifier
	limiter  *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Auth == nil || deps.Tenants == nil || deps.Resolver == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("[server.New] Auth, Tenants, Resolver and Issuer are required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   logger,
		auth:     deps.Auth,
		tenants:  deps.Tenants,
		resolver: deps.Resolver,
		issuer:   deps.Issuer,
		google:   deps.Google,
		limiter:  deps.Limiter,
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	displayMethod := Gray + paddedMethod + ResetColor
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

// clientInfo extracts request metadata for audit events.
func clientInfo(r *http.Request) auth.Client {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	return auth.Client{IP: ip, UserAgent: r.UserAgent()}
}
