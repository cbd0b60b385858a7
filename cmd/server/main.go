/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gametime HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, JSON file, GAMETIME_* env, flags)
  2. Build the zap logger (stdout + optional rotating file)
  3. Open and migrate the SQLite store
  4. Wire ledger service, token issuer, handler and router
  5. Start the settlement scheduler if enabled
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config       JSON config file
  -addr         Listen address (default: :8080)
  -db           SQLite database path (default: ./data/gametime.db)
                Use ":memory:" for an in-memory database
  -tz           IANA timezone for day boundaries (default: Asia/Shanghai)
  -jwt-secret   HMAC secret for session tokens (required)
  -log-level    debug, info, warn or error
  -log-path     Rotating log file
  -auto-settle  Settle yesterday automatically
  -scenarios    Mount the demo scenario endpoints

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight pass)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  GAMETIME_JWT_SECRET=change-me ./server -db=./data/gametime.db
  ./server -jwt-secret=dev -db=":memory:" -scenarios

SEE ALSO:
  - config/config.go:       All settings and their env names
  - api/server.go:          Router configuration
  - store/sqlite/sqlite.go: Database implementation
  - cmd/gametime:           Admin CLI (create users, settle from cron)
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/gametime/api"
	"github.com/warp/gametime/auth"
	"github.com/warp/gametime/config"
	"github.com/warp/gametime/ledger"
	"github.com/warp/gametime/logging"
	"github.com/warp/gametime/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gametime:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	ctx := context.Background()
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := ledger.New(store, ledger.WithLogger(logger))
	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	handler := api.NewHandler(store, svc, tokens, loc, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		EnableScenarios:    cfg.EnableScenarios,
	})

	scheduler := api.NewSettlementScheduler(store, svc, loc, logger)
	scheduler.Enabled = cfg.AutoSettle
	scheduler.CheckInterval = cfg.AutoSettleInterval
	scheduler.LagDays = cfg.AutoSettleLagDays
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath),
			zap.String("timezone", loc.String()),
			zap.Bool("auto_settle", cfg.AutoSettle),
			zap.Bool("scenarios", cfg.EnableScenarios),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-serveErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
