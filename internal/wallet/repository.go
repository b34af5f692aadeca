package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists wallet metadata.
type Repository interface {
	// GetOrCreate inserts w unless the creator already owns a wallet, in
	// which case the existing wallet is returned with created=false.
	GetOrCreate(ctx context.Context, w Wallet) (Wallet, bool, error)
	Get(ctx context.Context, id string) (Wallet, error)
	GetByCreator(ctx context.Context, creatorID string) (Wallet, error)
	SetVerified(ctx context.Context, id string, verified bool, at time.Time) (Wallet, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) (Wallet, error)
	// ListPayoutEligible returns verified and active wallets.
	ListPayoutEligible(ctx context.Context) ([]Wallet, error)
}

const walletColumns = `id::text, creator_id::text, currency, is_verified, is_active, created_at, updated_at`

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate relies on the unique creator_id constraint so concurrent
// provisioning of the same creator yields a single wallet.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, w Wallet) (Wallet, bool, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO wallets (id, creator_id, currency, is_verified, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (creator_id) DO NOTHING
        RETURNING `+walletColumns,
		w.ID, w.CreatorID, w.Currency, w.IsVerified, w.IsActive, w.CreatedAt.UTC())
	created, err := scanWallet(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, false, fmt.Errorf("insert wallet: %w", err)
	}
	existing, err := r.GetByCreator(ctx, w.CreatorID)
	if err != nil {
		return Wallet{}, false, err
	}
	return existing, false, nil
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.one(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// GetByCreator fetches the wallet owned by a creator.
func (r *PostgresRepository) GetByCreator(ctx context.Context, creatorID string) (Wallet, error) {
	if _, err := uuid.Parse(creatorID); err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.one(ctx, `SELECT `+walletColumns+` FROM wallets WHERE creator_id = $1`, creatorID)
}

func (r *PostgresRepository) SetVerified(ctx context.Context, id string, verified bool, at time.Time) (Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.one(ctx, `UPDATE wallets SET is_verified = $2, updated_at = $3 WHERE id = $1 RETURNING `+walletColumns,
		id, verified, at.UTC())
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) (Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.one(ctx, `UPDATE wallets SET is_active = $2, updated_at = $3 WHERE id = $1 RETURNING `+walletColumns,
		id, active, at.UTC())
}

// ListPayoutEligible returns verified, active wallets ordered by id.
func (r *PostgresRepository) ListPayoutEligible(ctx context.Context) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE is_verified AND is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list eligible wallets: %w", err)
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (Wallet, error) {
	w, err := scanWallet(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, fmt.Errorf("query wallet: %w", err)
	}
	return w, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.CreatorID, &w.Currency, &w.IsVerified, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
