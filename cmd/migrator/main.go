package main

import (
	"database/sql"
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/tip-zed/tipzed/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migratorConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	down := flag.Bool("down", false, "roll back every migration instead of applying them")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(*down); err != nil {
		slog.Error("migration run failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("migration run finished successfully")
}

func run(down bool) error {
	var cfg migratorConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(cfg.LogLevel, "tipzed-migrator", ""))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close() // nolint:errcheck

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", err)
	}
	slog.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}
