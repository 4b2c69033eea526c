// Command api is the expirywatch server: it runs the daily expiry
// notification scheduler, the optional email digest and the HTTP API.
//
// Usage:
//
//	expirywatch-api
//	API_PORT=8080 NOTIFY_HOUR=7 expirywatch-api

// @title Expirywatch API
// @version 1.0.0
// @description Expiry classification, daily notification state and email digest for a perishable inventory.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Expirywatch
// @license.name MIT
package main

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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/albapepper/expirywatch/internal/api"
	"github.com/albapepper/expirywatch/internal/api/handler"
	"github.com/albapepper/expirywatch/internal/app"
	"github.com/albapepper/expirywatch/internal/cache"
	"github.com/albapepper/expirywatch/internal/config"
	"github.com/albapepper/expirywatch/internal/db"
	"github.com/albapepper/expirywatch/internal/digest"
	"github.com/albapepper/expirywatch/internal/expiry"
	"github.com/albapepper/expirywatch/internal/maintenance"
	"github.com/albapepper/expirywatch/internal/notifications"
	"github.com/albapepper/expirywatch/internal/products"

	_ "github.com/albapepper/expirywatch/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database (optional)
	var (
		pool *db.Pool
		repo *products.Repository
	)
	if cfg.HasDatabase() {
		logger.Info("Connecting to database...")
		p, err := db.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		// Background users of the pool stop on ctx before it closes.
		defer releaseAfterCancel(cancel, p.Close)()
		pool = p
		repo = products.NewRepository(pool.Pool)
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
	} else {
		logger.Info("No DATABASE_URL, products come from pushed snapshots only")
	}

	// Initialize cache
	appCache := cache.New(ctx, cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Notification state and channels
	var rawPool *pgxpool.Pool
	if pool != nil {
		rawPool = pool.Pool
	}
	_, store, err := app.OpenState(cfg, rawPool, logger)
	if err != nil {
		return err
	}
	dispatcher, err := app.Dispatcher(cfg, os.Stdout, logger)
	if err != nil {
		return err
	}
	logger.Info("Notification channels registered", "channels", dispatcher.Channels(), "state_backend", cfg.StateBackend)

	// Scheduler: one per process, owned here.
	scheduler, err := notifications.NewScheduler(dispatcher, store, app.SchedulerOptions(cfg), logger)
	if err != nil {
		return err
	}

	var initial []expiry.Product
	if repo != nil {
		if initial, err = repo.ListProducts(ctx); err != nil {
			logger.Warn("Initial product load failed, starting with an empty snapshot", "error", err)
		}
	}
	scheduler.Start(initial)
	defer scheduler.Stop()

	// Keep the snapshot live through LISTEN/NOTIFY
	if repo != nil {
		l := products.NewListener(cfg.DatabaseURL, repo, func(ps []expiry.Product) {
			scheduler.UpdateProducts(ps)
			appCache.Invalidate(handler.CachePrefix)
		}, logger)
		go l.Run(ctx)

		// Catch-up reloads and pruning of consumed products
		go maintenance.Start(ctx, pool.Pool, l.Reload, maintenance.Config{
			CleanupInterval:   cfg.CleanupInterval,
			CatchUpInterval:   cfg.CatchUpInterval,
			ConsumedRetention: cfg.ConsumedRetention,
		}, logger)
	}

	// Email digest (cron)
	var job *digest.Job
	if cfg.DigestEnabled && repo != nil {
		job, err = app.DigestJob(cfg, repo, logger)
		if err != nil {
			return fmt.Errorf("build digest job: %w", err)
		}
		trigger, err := digest.NewTrigger(job, cfg.DigestHour, cfg.DigestLocation, logger)
		if err != nil {
			return err
		}
		trigger.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			trigger.Stop(stopCtx)
		}()
	}

	// Create router
	deps := handler.Deps{
		Cache:     appCache,
		Scheduler: scheduler,
		State:     store,
		Channels:  dispatcher.Channels(),
		Location:  cfg.NotifyLocation,
		CacheTTL:  cfg.CacheTTL,
	}
	if pool != nil {
		deps.DB = pool
		deps.Products = repo
	}
	if job != nil {
		deps.Digest = job
	}
	router := api.NewRouter(deps, cfg, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // digest runs synchronously
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Expirywatch API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt or listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
	return nil
}

// releaseAfterCancel cancels the run context before releasing a shared
// resource, so goroutines bound to the context stop using it first.
func releaseAfterCancel(cancel context.CancelFunc, release func()) func() {
	return func() {
		cancel()
		release()
	}
}
