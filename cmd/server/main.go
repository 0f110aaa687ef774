package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/credentive/go-credential-service/audit"
	"github.com/credentive/go-credential-service/audit/amqpsink"
	"github.com/credentive/go-credential-service/auth"
	"github.com/credentive/go-credential-service/extidentity"
	"github.com/credentive/go-credential-service/internal/config"
	"github.com/credentive/go-credential-service/internal/mailer"
	"github.com/credentive/go-credential-service/internal/ratelimit"
	"github.com/credentive/go-credential-service/internal/storage/mysql"
	"github.com/credentive/go-credential-service/secrets"
	"github.com/credentive/go-credential-service/server"
	"github.com/credentive/go-credential-service/session"
	"github.com/credentive/go-credential-service/tenants"
	"github.com/credentive/go-credential-service/token"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
	pruneInterval   = time.Hour
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("server exited")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.New()
	logger := newLogger(cfg.GetEnv())
	displayAppname(cfg.GetAppName())

	db, err := mysql.Open(cfg.GetDBUser(), cfg.GetDBPassword(), cfg.GetDBHost(), cfg.GetDBPort(), cfg.GetDBName())
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()

	hasher, err := secrets.NewHasher(cfg.GetBcryptCost())
	if err != nil {
		return errors.Wrap(err, "create hasher")
	}
	issuer, err := token.NewIssuer(cfg.GetAccessTokenSecret())
	if err != nil {
		return errors.Wrap(err, "create issuer")
	}

	recorder, closeAudit := newAuditRecorder(cfg, db, logger)
	defer closeAudit()

	sessionRepo := mysql.NewSessionRepo(db)
	userRepo := mysql.NewUserRepo(db)
	tenantRepo := mysql.NewTenantRepo(db)

	engine, err := session.NewEngine(sessionRepo, userRepo, issuer, cfg, recorder)
	if err != nil {
		return errors.Wrap(err, "create session engine")
	}

	smtpMailer := mailer.NewSMTPMailer(cfg.GetSmtpHost(), cfg.GetSmtpPort(), cfg.GetSmtpAccount(), cfg.GetSmtpPassword(), logger)

	tenantService, err := tenants.NewService(tenantRepo, hasher, smtpMailer, cfg.GetBaseURL())
	if err != nil {
		return errors.Wrap(err, "create tenant service")
	}
	if err := checkStoredDigests(tenantService, cfg.GetStoreTimeout()); err != nil {
		return errors.Wrap(err, "validate stored digests")
	}

	authService, err := auth.NewService(
		auth.Repos{Users: userRepo, Tenants: tenantRepo},
		engine, hasher, recorder,
		auth.WithMailer(smtpMailer, cfg.GetBaseURL()),
	)
	if err != nil {
		return errors.Wrap(err, "create auth service")
	}

	srv, err := server.New(cfg, server.Deps{
		Auth:     authService,
		Tenants:  tenantService,
		Resolver: tenants.NewResolver(tenantRepo, hasher),
		Issuer:   issuer,
		Google:   newGoogleVerifier(logger),
		Limiter:  newLoginLimiter(cfg, logger),
	}, logger)
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	pruneCtx, stopPruning := context.WithCancel(context.Background())
	defer stopPruning()
	go pruneExpiredSessions(pruneCtx, sessionRepo, logger)

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func newLogger(env string) zerolog.Logger {
	if env == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newAuditRecorder builds the audit pipeline. Events always land in the
// database; when the message bus is reachable they are published there too.
func newAuditRecorder(cfg config.Config, db *sql.DB, logger zerolog.Logger) (audit.Recorder, func()) {
	sinks := []audit.Sink{mysql.NewAuditSink(db)}

	var busSink *amqpsink.Sink
	if url := cfg.GetAmqpURL(); url != "" {
		sink, err := amqpsink.New(url)
		if err != nil {
			logger.Warn().Err(err).Msg("audit bus disabled, amqp unreachable")
		} else {
			sinks = append(sinks, sink)
			busSink = sink
		}
	}

	dispatcher := audit.NewDispatcher(audit.NewFanoutSink(sinks...), logger)
	return dispatcher, func() {
		dispatcher.Close()
		if busSink != nil {
			_ = busSink.Close()
		}
	}
}

// checkStoredDigests fails startup when any stored tenant secret digest is
// malformed. A malformed digest can never verify.
func checkStoredDigests(tenantService *tenants.Service, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return tenantService.CheckSecretDigests(ctx)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("listen and serve")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(httpServer.Shutdown(ctx), "server shutdown")
}

// pruneExpiredSessions physically removes expired session records on an
// interval. Revocation and expiry stay authoritative by timestamp either
// way; this only keeps the table small.
func pruneExpiredSessions(ctx context.Context, repo session.Repo, logger zerolog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpired(ctx, time.Now())
			if err != nil {
				logger.Warn().Err(err).Msg("prune expired sessions")
				continue
			}
			if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("pruned expired sessions")
			}
		}
	}
}

func newGoogleVerifier(logger zerolog.Logger) *extidentity.GoogleVerifier {
	clientID := config.GetEnv("GOOGLE_CLIENT_ID", "")
	if clientID == "" {
		logger.Info().Msg("google sign-in disabled, GOOGLE_CLIENT_ID not set")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	verifier, err := extidentity.NewGoogleVerifier(ctx, clientID,
		config.GetEnv("GOOGLE_CLIENT_SECRET", ""),
		config.GetEnv("GOOGLE_REDIRECT_URL", ""))
	if err != nil {
		logger.Warn().Err(err).Msg("google sign-in disabled, discovery failed")
		return nil
	}
	return verifier
}

func newLoginLimiter(cfg config.Config, logger zerolog.Logger) *ratelimit.Limiter {
	client, err := ratelimit.NewRedisClient(cfg.GetRedisAddr(), cfg.GetRedisPassword())
	if err != nil {
		logger.Warn().Err(err).Msg("rate limiting disabled, redis unreachable")
		return nil
	}
	return ratelimit.NewLimiter(client, "ratelimit:login", loginRateLimit, loginRateWindow)
}
