package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minPoolConns      = 20
	healthCheckPeriod = 30 * time.Second
)

// NewPostgresPool opens the pgx pool behind the ledger, wallet and creator
// stores. Each wallet scoped unit of work holds one connection until it
// commits. appName is reported to Postgres as application_name.
func NewPostgresPool(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(url, appName)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable at %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}

func poolConfig(url, appName string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = max(cfg.MaxConns, minPoolConns)
	cfg.HealthCheckPeriod = healthCheckPeriod
	if appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = appName
	}
	return cfg, nil
}
