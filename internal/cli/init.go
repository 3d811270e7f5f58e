// Package cli provides common CLI initialization utilities.
// This package consolidates the wiring shared by cmd/ledger and cmd/ledgerctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/identity"
	"ledger/internal/log"
	"ledger/internal/remote"
	"ledger/internal/services"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

// SetupLogger initializes structured logging at the configured level.
// Returns the configured logger and sets it as the default logger.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	if cfg != nil {
		lc.Level = cfg.SlogLevel()
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the SQLite store at dbPath.
// Returns the store or exits the process on failure.
func InitStore(logger *log.Logger, dbPath string) *storage.Store {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return store
}

// App holds the wired ledger components.
type App struct {
	Store       *storage.Store
	Remote      remote.Store
	Scheduler   *worker.Scheduler
	Identity    *identity.Context
	Coordinator *services.Coordinator
	Ledger      *services.Ledger
}

// NewApp wires the ledger on top of an open store.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger, store *storage.Store) (*App, error) {
	bcfg, err := backend.FromAppConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("remote backend config: %w", err)
	}
	remoteStore, err := backend.NewFactory(logger.Logger).CreateRemote(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create remote backend: %w", err)
	}

	app := &App{
		Store:     store,
		Remote:    remoteStore,
		Scheduler: worker.NewScheduler(cfg.SyncWorkers, logger.WithComponent(log.ComponentWorker)),
		Identity:  identity.New(),
	}
	app.Coordinator = services.NewCoordinator(
		store,
		remoteStore,
		app.Scheduler,
		app.Identity,
		services.CoordinatorConfig{
			BatchSize:            cfg.SyncBatchSize,
			MigrationConcurrency: cfg.SyncWorkers,
		},
		logger.WithComponent(log.ComponentCoordinator),
	)
	app.Ledger = services.NewLedger(store, app.Coordinator, app.Identity, cfg.DefaultCurrency, logger.WithComponent(log.ComponentLedger))

	if err := app.Ledger.Bootstrap(ctx); err != nil {
		return nil, err
	}
	logger.Info("Ledger initialized", "backend", bcfg.Type, "workers", cfg.SyncWorkers)
	return app, nil
}

// Close drains pending pushes within timeout and closes the store.
func (a *App) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.Coordinator.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close app: %v", errs)
	}
	return nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		cancel()
		logger.Info("Shutdown complete")
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
