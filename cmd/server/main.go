/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the filing workflow server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Create engine, API handler and router
  5. Start the reminder scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. The common ones:
  PORT, DB_PATH, JWT_SECRET, ALLOWED_ORIGINS, LOG_LEVEL, LOG_FORMAT,
  DUE_DATE_WARNING_DAYS, REMINDER_INTERVAL, REMINDERS_ENABLED

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/filing.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - filing/workflow.go: Engine
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/filing-engine/api"
	"github.com/warp/filing-engine/config"
	"github.com/warp/filing-engine/filing"
	"github.com/warp/filing-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.String("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Database.Path = *dbPath

	logger := config.NewLogger(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.WithError(err).Fatal("failed to create database directory")
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	engine := filing.NewEngine(store, logger)

	// Initialize handler
	handler := api.NewHandler(engine, logger)
	handler.WarningDays = cfg.Reminders.WarningDays
	handler.Ping = store.Ping

	ctx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	limiter.StartCleanup(ctx, time.Hour)

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		Tokens:         api.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Expiration),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:    limiter,
	})

	scheduler := api.NewReminderScheduler(engine, logger)
	scheduler.Enabled = cfg.Reminders.Enabled
	scheduler.CheckInterval = cfg.Reminders.Interval
	scheduler.WarningDays = cfg.Reminders.WarningDays
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        server.Addr,
			"db":          cfg.Database.Path,
			"environment": cfg.Server.Environment,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
		return
	}

	logger.Info("server stopped")
}
