package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tip-zed/tipzed/internal/config"
	"github.com/tip-zed/tipzed/internal/infra"
	"github.com/tip-zed/tipzed/internal/logging"
	"github.com/tip-zed/tipzed/internal/server"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.AppName, cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", slog.Any("error", err))
			}
		}()
		cache = client
	} else {
		logger.Warn("REDIS_URL not set, idempotency and rate limiting disabled")
	}

	srv, err := server.New(cfg, db, cache, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Listen() }()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
