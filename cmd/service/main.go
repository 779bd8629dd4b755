// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"copilot-metrics-service/internal/aggregate"
	"copilot-metrics-service/internal/api"
	"copilot-metrics-service/internal/auth"
	"copilot-metrics-service/internal/config"
	gh "copilot-metrics-service/internal/github"
	"copilot-metrics-service/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Select the usage store: Postgres when DB_URL is set, memory otherwise
	var usage store.UsageStore = store.NewMemoryStore()
	if cfg.DBURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbpool.Close()

		if err := runMigrations(cfg.DBURL); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
		usage = store.NewPostgresStore(dbpool)
		logger.Info("Using Postgres usage store")
	} else {
		logger.Info("Using in-memory usage store")
	}

	// 5. Initialize application components
	sessions := auth.NewSessions(cfg.SessionTTL)
	oauth := auth.NewOAuth(cfg.GithubClientID, cfg.GithubClientSecret, cfg.CallbackURL)
	aggregator := aggregate.New(logger)
	newClient := func(token string) *gh.Client {
		c := gh.NewClient(token, logger)
		c.SetMaxPages(cfg.MaxPages)
		return c
	}

	router := api.NewRouter(logger, sessions, oauth, usage, aggregator, newClient)

	// 6. Start the HTTP server
	server := &http.Server{
		Addr:    net.JoinHostPort("", cfg.Port),
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server failure
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
