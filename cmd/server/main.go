package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"porramusical/internal/app"
	"porramusical/internal/config"
	"porramusical/internal/domain"
	"porramusical/internal/storage/sqlite"
	httpTransport "porramusical/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var logger *slog.Logger
	logOpts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, logOpts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts))
	}

	slog.SetDefault(logger)

	logger.Info("starting porra musical store server",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"persist", cfg.Store.Persist,
	)

	// Open persistence
	var persister app.Persister
	if cfg.Store.Persist {
		db, err := sqlite.Open(cfg.Store.DBPath)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.Store.DBPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if n, err := db.CountRecords(context.Background(), domain.RecordKey("")); err == nil {
			logger.Info("database opened", "path", cfg.Store.DBPath, "games", n)
		}
		persister = db
	}

	// Create record hub
	hub := app.NewRecordHub(persister, cfg.Store.StaleRecordTimeout, logger)
	defer hub.Close()

	// Create HTTP server
	server := httpTransport.NewServer(cfg, hub, logger)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
