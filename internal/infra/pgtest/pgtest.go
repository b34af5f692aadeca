// Package pgtest provisions throwaway PostgreSQL databases for integration tests.
package pgtest

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tip-zed/tipzed/internal/infra"
)

// EnvDSN names the variable holding an admin DSN. Tests skip when it is unset.
const EnvDSN = "TEST_DATABASE_URL"

const migrationsDir = "cmd/migrator/migrations"

// NewPool creates a fresh database, applies every migration and returns a
// pool connected to it. The database is dropped when the test ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	baseDSN := os.Getenv(EnvDSN)
	if baseDSN == "" {
		t.Skipf("%s not set", EnvDSN)
	}

	admin, err := sql.Open("pgx", baseDSN)
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := sanitizeIdent(uniqueName("tipzed", t.Name()))
	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE "%s" WITH TEMPLATE template0 ENCODING 'UTF8'`, dbName)); err != nil {
		_ = admin.Close()
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		_, _ = admin.ExecContext(dctx, fmt.Sprintf(`DROP DATABASE IF EXISTS "%s" WITH (FORCE)`, dbName))
		_ = admin.Close()
	})

	testDSN, err := replaceDatabase(baseDSN, dbName)
	if err != nil {
		t.Fatalf("test dsn: %v", err)
	}
	if err := migrateUp(testDSN); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := infra.NewPostgresPool(ctx, testDSN, "tipzed-test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func migrateUp(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck

	path, err := migrationsPath()
	if err != nil {
		return err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := (&file.File{}).Open(path)
	if err != nil {
		return fmt.Errorf("open migrations dir: %w", err)
	}
	m, err := migrate.NewWithInstance("file", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// replaceDatabase swaps the database name in a URL-form DSN.
func replaceDatabase(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func migrationsPath() (string, error) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("runtime.Caller failed")
	}
	// internal/infra/pgtest -> repo root
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "..")
	return filepath.Abs(filepath.Join(root, migrationsDir))
}

func uniqueName(prefix, testName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(testName))
	var rnd [6]byte
	_, _ = rand.Read(rnd[:])
	return fmt.Sprintf("%s_%08x_%s", prefix, h.Sum32(), hex.EncodeToString(rnd[:]))
}

func sanitizeIdent(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_", "-", "_").Replace(strings.ToLower(s))
	if len(s) <= 63 {
		return s
	}
	return s[:31] + "_" + s[len(s)-31:]
}
