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

	"github.com/lmittmann/tint"

	"github.com/pvolkov/mailmirror/internal/api"
	"github.com/pvolkov/mailmirror/internal/auth"
	"github.com/pvolkov/mailmirror/internal/config"
	"github.com/pvolkov/mailmirror/internal/database"
	"github.com/pvolkov/mailmirror/internal/imap"
	mailsync "github.com/pvolkov/mailmirror/internal/sync"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailmirror")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	dialer := imap.NewDialer(imap.Config{
		Server:             cfg.IMAPServer,
		DialTimeout:        cfg.IMAPDialTimeout,
		InsecureSkipVerify: cfg.IMAPInsecureSkipVerify,
	}, logger)

	syncService := mailsync.NewService(mailsync.NewIMAPDialer(dialer), db, cfg.IMAPMailbox, logger)
	oauthManager := auth.NewManager(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	tokenIssuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	server := api.NewServer(api.ServerDeps{
		Config: cfg,
		Users:  db,
		Sync:   syncService,
		OAuth:  oauthManager,
		Tokens: tokenIssuer,
		Logger: logger,
	})

	// Start server
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down cleanly", "error", err)
	}

	logger.Info("mailmirror stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
