package creator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists creators.
type Repository interface {
	Create(ctx context.Context, c Creator) error
	Get(ctx context.Context, id string) (Creator, error)
	FindByUsername(ctx context.Context, username string) (Creator, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed creator repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new creator.
func (r *PostgresRepository) Create(ctx context.Context, c Creator) error {
	_, err := r.db.Exec(ctx, `INSERT INTO creators (id, username, display_name, email, created_at)
        VALUES ($1, $2, $3, $4, $5)`, c.ID, c.Username, c.DisplayName, c.Email, c.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert creator: %w", err)
	}
	return nil
}

// Get fetches a creator by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Creator, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Creator{}, ErrNotFound
	}
	return r.one(ctx, `SELECT id::text, username, display_name, email, created_at FROM creators WHERE id = $1`, id)
}

// FindByUsername fetches a creator by username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (Creator, error) {
	return r.one(ctx, `SELECT id::text, username, display_name, email, created_at FROM creators WHERE username = $1`, username)
}

func (r *PostgresRepository) one(ctx context.Context, query string, arg string) (Creator, error) {
	var c Creator
	err := r.db.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Username, &c.DisplayName, &c.Email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Creator{}, ErrNotFound
		}
		return Creator{}, fmt.Errorf("query creator: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
