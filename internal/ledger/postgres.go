package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation = "23505"

	pendingPayoutConstraint = "wallet_transactions_pending_payout_uq"
	referenceConstraint     = "wallet_transactions_reference_uq"
)

const transactionColumns = `id::text, wallet_id::text, COALESCE(related_id::text, ''), type, amount::text,
        status, reference, payment_ref, metadata, created_at, updated_at`

// PostgresStore persists ledger accounts and transactions in PostgreSQL. The
// cached balance lives on ledger_accounts and is locked with FOR UPDATE for
// the duration of each WithWallet scope.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureAccount opens a zero-balance account for the wallet if none exists.
func (s *PostgresStore) EnsureAccount(ctx context.Context, walletID string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO ledger_accounts (wallet_id, balance) VALUES ($1, 0)
        ON CONFLICT (wallet_id) DO NOTHING`, walletID)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

// Balance returns the cached balance for the wallet.
func (s *PostgresStore) Balance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	if _, err := uuid.Parse(walletID); err != nil {
		return decimal.Zero, ErrAccountNotFound
	}
	var raw string
	err := s.db.QueryRow(ctx, `SELECT balance::text FROM ledger_accounts WHERE wallet_id = $1`, walletID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

// Transaction fetches a transaction by id.
func (s *PostgresStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	return queryTransaction(ctx, s.db, id)
}

// Transactions lists a wallet's transactions, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, filter Filter) (Page, error) {
	where := []string{"wallet_id = $1"}
	args := []any{filter.WalletID}

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + `, COUNT(*) OVER()
        FROM wallet_transactions
        WHERE ` + strings.Join(where, " AND ") + `
        ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var total int
		t, err := scanTransaction(rows, &total)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, t)
		page.Total = total
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	if len(page.Items) == 0 && filter.Offset > 0 {
		// Past the last page the window count is unavailable.
		err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE `+strings.Join(where, " AND "),
			args[:len(where)]...).Scan(&page.Total)
		if err != nil {
			return Page{}, fmt.Errorf("count transactions: %w", err)
		}
	}
	return page, nil
}

// Totals aggregates the wallet's ledger.
func (s *PostgresStore) Totals(ctx context.Context, walletID string) (Totals, error) {
	if _, err := s.Balance(ctx, walletID); err != nil {
		return Totals{}, err
	}

	const query = `
        SELECT
            COALESCE(SUM(amount) FILTER (WHERE type = 'CASH_IN'), 0)::text,
            COALESCE(-SUM(amount) FILTER (WHERE type = 'PAYOUT' AND status = 'COMPLETED'), 0)::text,
            COALESCE(-SUM(amount) FILTER (WHERE type = 'PAYOUT' AND status = 'PENDING'), 0)::text,
            COALESCE(-SUM(amount) FILTER (WHERE type = 'FEE' AND status = 'COMPLETED'), 0)::text
        FROM wallet_transactions
        WHERE wallet_id = $1`
	var cashIn, paidOut, pending, fees string
	if err := s.db.QueryRow(ctx, query, walletID).Scan(&cashIn, &paidOut, &pending, &fees); err != nil {
		return Totals{}, fmt.Errorf("totals: %w", err)
	}

	var totals Totals
	var err error
	if totals.CashIn, err = decimal.NewFromString(cashIn); err != nil {
		return Totals{}, err
	}
	if totals.PaidOut, err = decimal.NewFromString(paidOut); err != nil {
		return Totals{}, err
	}
	if totals.PendingPayout, err = decimal.NewFromString(pending); err != nil {
		return Totals{}, err
	}
	if totals.Fees, err = decimal.NewFromString(fees); err != nil {
		return Totals{}, err
	}
	return totals, nil
}

// FundedAccounts lists wallets with a positive balance.
func (s *PostgresStore) FundedAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT wallet_id::text FROM ledger_accounts WHERE balance > 0 ORDER BY wallet_id`)
	if err != nil {
		return nil, fmt.Errorf("funded accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithWallet locks the wallet's ledger account row and runs fn in one
// database transaction.
func (s *PostgresStore) WithWallet(ctx context.Context, walletID string, fn func(tx StoreTx) error) error {
	if _, err := uuid.Parse(walletID); err != nil {
		return ErrAccountNotFound
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var raw string
	err = tx.QueryRow(ctx, `SELECT balance::text FROM ledger_accounts WHERE wallet_id = $1 FOR UPDATE`, walletID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lock account: %w", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse balance: %w", err)
	}

	if err := fn(&postgresTx{tx: tx, walletID: walletID, balance: balance}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx       pgx.Tx
	walletID string
	balance  decimal.Decimal
}

func (p *postgresTx) Balance() decimal.Decimal { return p.balance }

func (p *postgresTx) Transaction(ctx context.Context, id string) (Transaction, error) {
	return queryTransaction(ctx, p.tx, id)
}

func (p *postgresTx) FindByReference(ctx context.Context, typ Type, reference string) (Transaction, bool, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM wallet_transactions WHERE wallet_id = $1 AND type = $2 AND reference = $3`,
		p.walletID, string(typ), reference)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func (p *postgresTx) PendingPayout(ctx context.Context) (Transaction, bool, error) {
	row := p.tx.QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM wallet_transactions WHERE wallet_id = $1 AND type = 'PAYOUT' AND status = 'PENDING'`, p.walletID)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func (p *postgresTx) Related(ctx context.Context, id string, typ Type) ([]Transaction, error) {
	rows, err := p.tx.Query(ctx, `SELECT `+transactionColumns+`
        FROM wallet_transactions WHERE related_id = $1 AND type = $2 ORDER BY created_at`, id, string(typ))
	if err != nil {
		return nil, fmt.Errorf("related transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *postgresTx) Insert(ctx context.Context, t Transaction) error {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = p.tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, related_id, type, amount, status, reference, payment_ref, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.WalletID, nullable(t.RelatedID), string(t.Type), t.Amount.String(), string(t.Status),
		t.Reference, t.PaymentRef, payload, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case pendingPayoutConstraint:
				return Invalid(ReasonPendingPayout)
			case referenceConstraint:
				return ErrDuplicateTransaction
			}
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *postgresTx) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	cmd, err := p.tx.Exec(ctx, `UPDATE wallet_transactions SET status = $1, updated_at = $2
        WHERE id = $3 AND wallet_id = $4 AND status = 'PENDING'`, string(status), at.UTC(), id, p.walletID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Invalid(ReasonTerminalStatus)
	}
	return nil
}

func (p *postgresTx) AddBalance(ctx context.Context, delta decimal.Decimal) error {
	_, err := p.tx.Exec(ctx, `UPDATE ledger_accounts SET balance = balance + $1::numeric, updated_at = now()
        WHERE wallet_id = $2`, delta.String(), p.walletID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	p.balance = p.balance.Add(delta)
	return nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryTransaction(ctx context.Context, q queryer, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, txID.String())
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func scanTransaction(row pgx.Row, extra ...any) (Transaction, error) {
	var (
		t        Transaction
		typ      string
		status   string
		amount   string
		metadata []byte
	)
	dest := []any{&t.ID, &t.WalletID, &t.RelatedID, &typ, &amount, &status,
		&t.Reference, &t.PaymentRef, &metadata, &t.CreatedAt, &t.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Transaction{}, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	t.Amount = parsed
	t.Type = Type(typ)
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return Transaction{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return t, nil
}

func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}
