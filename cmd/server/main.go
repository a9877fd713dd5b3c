package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/colannotate/internal/config"
	"github.com/JonMunkholm/colannotate/internal/core"
	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/logging"
	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"model", cfg.Oracle.Model,
		"runs_max_concurrent", cfg.Runs.MaxConcurrent,
		"database", cfg.Database.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()

	chat := oracle.NewChat(oracle.ChatConfig{
		BaseURL: cfg.Oracle.URL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})

	// The server has no operator console, so escalations decline.
	engine := core.NewEngine(chat, human.Decline{}, core.Options{
		SampleRows:    cfg.Annotate.SampleRows,
		OracleTimeout: cfg.Oracle.Timeout,
	})

	svcCfg := core.ServiceConfig{
		RunTimeout: cfg.Runs.Timeout,
		Retention:  cfg.Runs.Retention,
	}
	opts := []web.Option{web.WithOracle(chat)}

	if cfg.Database.Enabled() {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		history := core.NewRunHistory(pool)
		if err := history.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare run history", "error", err)
			os.Exit(1)
		}
		svcCfg.Store = history
		opts = append(opts, web.WithDatabase(pool))
	}

	limiter := core.NewRunLimiter(cfg.Runs.MaxConcurrent, cfg.Runs.MaxWaitTime)
	service := core.NewService(engine, limiter, svcCfg)
	server := web.NewServer(service, cfg, opts...)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartPruneScheduler(jobCtx, core.PruneConfig{
		Retention:     cfg.Runs.HistoryRetention,
		CheckInterval: cfg.Runs.PruneInterval,
	})

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active runs to complete (with timeout)
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for annotation runs to complete", "active", status.Active)
			if err := service.Drain(shutdownCtx); err != nil {
				slog.Warn("annotation runs did not complete in time", "error", err)
			} else {
				slog.Info("all annotation runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

// connect opens the run history pool with the configured limits.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
