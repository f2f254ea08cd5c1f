// Package app assembles the two processes: the issuer, which mints
// score tokens, and the checker, which verifies them and fronts the
// scoring computation. Both share the same wiring skeleton and differ
// only in which services get initialized.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/crediflow/scoregate/internal/gate/http"
	"github.com/crediflow/scoregate/internal/gate/ledger"
	"github.com/crediflow/scoregate/internal/gate/metrics"
	"github.com/crediflow/scoregate/internal/gate/scoring"
	"github.com/crediflow/scoregate/internal/gate/service"
	"github.com/crediflow/scoregate/pkg/slogx"
	"github.com/crediflow/scoregate/pkg/tokenx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Mode selects which process this Application runs as.
type Mode string

const (
	ModeIssuer  Mode = "issuer"
	ModeChecker Mode = "checker"
)

// Application encapsulates one process with all its dependencies.
type Application struct {
	mode   Mode
	cfg    Config
	logger *slog.Logger

	keys        *tokenx.KeyStore
	nonceLedger ledger.Ledger
	scorer      service.Scorer

	issuerService  *service.Issuer
	checkerService *service.Checker

	server *http.Server
	router *httpapi.Router
}

// Option customizes an Application before its services are wired.
type Option func(*Application)

// WithScorer injects the scoring collaborator the checker hands
// accepted requests to. Without it the deterministic stub is used.
func WithScorer(s service.Scorer) Option {
	return func(app *Application) { app.scorer = s }
}

// New creates an Application for the given mode with all dependencies
// initialized.
func New(mode Mode, cfg Config, opts ...Option) (*Application, error) {
	app := &Application{
		mode: mode,
		cfg:  cfg,
		logger: slogx.New(slogx.Config{
			Service: "scoregate-" + string(mode),
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	for _, opt := range opts {
		opt(app)
	}

	keys, err := LoadKeys(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	app.keys = keys

	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("scoregate starting",
		"mode", string(app.mode),
		"port", app.cfg.Port,
		"version", BuildVersion,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down", "mode", string(app.mode))

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.nonceLedger != nil {
		if err := app.nonceLedger.Close(); err != nil {
			app.logger.Error("error closing nonce ledger", "error", err)
			return err
		}
	}

	app.logger.Info("stopped", "mode", string(app.mode))
	return nil
}

// initServices initializes the mode-specific business logic.
func (app *Application) initServices() error {
	switch app.mode {
	case ModeIssuer:
		signer, err := app.keys.Signer()
		if err != nil {
			return fmt.Errorf("failed to initialize signer: %w", err)
		}

		app.issuerService = &service.Issuer{
			Signer:     signer,
			Limiter:    service.NewSoftLimiter(service.DefaultSubjectWindow, service.DefaultRequesterWindow),
			IssuerName: app.cfg.Issuer,
			Audience:   app.cfg.Audience,
			Scope:      app.cfg.Scope,
			TTL:        tokenx.TokenTTL,
		}

	case ModeChecker:
		if err := app.initLedger(); err != nil {
			return err
		}

		if app.scorer == nil {
			app.scorer = scoring.Stub{}
		}

		app.checkerService = &service.Checker{
			Verifier: &tokenx.Verifier{
				Keys:     app.keys,
				Issuer:   app.cfg.Issuer,
				Audience: app.cfg.Audience,
				Scope:    app.cfg.Scope,
			},
			Ledger: app.nonceLedger,
			Scorer: app.scorer,
		}

	default:
		return fmt.Errorf("unknown mode %q", app.mode)
	}

	return nil
}

// initLedger selects the nonce ledger backend. Memory is the default
// single-instance backend; redis shares the keyspace across a fleet.
func (app *Application) initLedger() error {
	switch app.cfg.NonceStore {
	case "redis":
		app.nonceLedger = ledger.NewRedis(app.cfg.RedisAddr, app.cfg.RedisDB)
		app.logger.Info("nonce ledger backend: redis", "addr", app.cfg.RedisAddr, "db", app.cfg.RedisDB)

	case "memory", "":
		app.nonceLedger = ledger.NewMemory(app.cfg.NonceSweepInterval, func() {
			metrics.NoncesEvicted.Inc()
		})
		app.logger.Info("nonce ledger backend: memory", "sweep_interval", app.cfg.NonceSweepInterval)

	default:
		return fmt.Errorf("unknown nonce store %q", app.cfg.NonceStore)
	}

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger)
	router.TokenService = app.issuerService
	router.ScoreService = app.checkerService

	if r, ok := app.nonceLedger.(*ledger.Redis); ok {
		router.ReadyCheck = r.Ping
	}

	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
