package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)
	logger.Info("Starting ledger server", log.FieldOperation, log.OpStartup)

	store := cli.InitStore(logger, cfg.DBPath)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.RemoteTimeout)
	app, err := cli.NewApp(startCtx, cfg, logger, store)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize ledger", "error", err)
		store.Close()
		os.Exit(1)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	if err := app.Coordinator.Start(runCtx); err != nil {
		logger.Error("Failed to start sync coordinator", "error", err)
		os.Exit(1)
	}

	// Category cache sweeps run for the life of the process.
	caches := cache.NewManager()
	caches.Register(app.Store)
	caches.StartCleanup(cfg.CacheCleanupInterval)

	srv := apphttp.NewServer(":"+cfg.Port, app.Ledger, logger.WithComponent(log.ComponentHTTP))

	var trigger *amqp.Client
	if cfg.AMQPURL != "" {
		trigger, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		go consumeTriggers(runCtx, trigger, app.Ledger, logger.WithComponent(log.ComponentAMQP))
	} else {
		logger.Info("AMQP sync triggers disabled - no AMQP_URL provided")
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		stopRun()
		if trigger != nil {
			if err := trigger.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		caches.Stop()
		if err := app.Close(shutdownTimeout); err != nil {
			logger.Error("Ledger shutdown error", "error", err)
		}
	})

	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port, "backend", cfg.RemoteBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}

// consumeTriggers runs a sync for every trigger message. Triggers that
// arrive while the guest is active are acknowledged and dropped.
func consumeTriggers(ctx context.Context, client *amqp.Client, ledger *services.Ledger, logger *log.Logger) {
	err := client.ConsumeSyncTriggers(ctx, func(ctx context.Context, msg *amqp.SyncTriggerMessage) error {
		report, err := ledger.SyncNow(ctx, msg.Reason)
		if errors.Is(err, services.ErrNotAuthenticated) {
			logger.InfoContext(ctx, "Ignoring sync trigger for guest", "reason", msg.Reason)
			return nil
		}
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "Sync triggered",
			"reason", report.Reason,
			"transactions", report.Transactions,
			"profile", report.Profile)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}
}
