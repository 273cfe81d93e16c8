package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/events"
	httpapi "github.com/cobaltgrid/identity/internal/identity/http"
	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/internal/identity/store/drivers/sqlite"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/jwtx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db        store.Store
	codec     *jwtx.Codec
	hasher    *cryptox.Hasher
	publisher events.Publisher

	authService         *service.AuthService
	invitationService   *service.InvitationService
	totpService         *service.TOTPService
	adminService        *service.AdminService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCrypto(); err != nil {
		return nil, err
	}
	app.initPublisher()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	app.logger.Info("shutting down identity service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if closer, ok := app.publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			app.logger.Error("error closing event publisher", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initCrypto() error {
	algo := cryptox.Algorithm(app.cfg.PasswordAlgo)
	switch algo {
	case cryptox.AlgoArgon2id, cryptox.AlgoBcrypt:
	default:
		return fmt.Errorf("unsupported password algorithm %q", app.cfg.PasswordAlgo)
	}
	app.hasher = &cryptox.Hasher{
		Default:    algo,
		BcryptCost: app.cfg.BcryptCost,
		Pepper:     app.cfg.PasswordPepper,
	}

	accessTTL, err := jwtx.ParseTTL(app.cfg.AccessTTL)
	if err != nil {
		app.logger.Warn("unparseable access TTL, using 7d fallback", "value", app.cfg.AccessTTL)
	}
	refreshTTL, err := jwtx.ParseTTL(app.cfg.RefreshTTL)
	if err != nil {
		app.logger.Warn("unparseable refresh TTL, using 7d fallback", "value", app.cfg.RefreshTTL)
	}

	app.codec = &jwtx.Codec{
		Issuer:        app.cfg.Issuer,
		AccessSecret:  []byte(app.cfg.AccessSecret),
		RefreshSecret: []byte(app.cfg.RefreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
	return nil
}

func (app *Application) initPublisher() {
	if app.cfg.RedisAddr == "" {
		app.logger.Info("no redis configured, events will be logged only")
		app.publisher = events.LogPublisher{}
		return
	}
	app.publisher = events.NewAsynqPublisher(app.cfg.RedisAddr, app.cfg.RedisPassword)
	app.logger.Info("event queue enabled", "redis_addr", app.cfg.RedisAddr)
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:  app.db,
		Hasher: app.hasher,
		Codec:  app.codec,
	}
	app.invitationService = &service.InvitationService{
		Store:      app.db,
		Hasher:     app.hasher,
		Publisher:  app.publisher,
		TOTPIssuer: app.cfg.TOTPIssuer,
		TTL:        time.Duration(app.cfg.InviteTTLHours) * time.Hour,
	}
	app.totpService = &service.TOTPService{
		Store:  app.db,
		Issuer: app.cfg.TOTPIssuer,
	}
	app.adminService = &service.AdminService{
		Store:  app.db,
		Hasher: app.hasher,
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, app.db, app.logger)
	router.AuthService = app.authService
	router.InvitationService = app.invitationService
	router.TOTPService = app.totpService
	router.AdminService = app.adminService
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
