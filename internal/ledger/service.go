package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service applies balance mutations through transaction rows. Each public
// mutation is one atomic unit scoped to a single wallet.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService builds a transaction service on top of a ledger store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CashInInput captures a settled incoming payment.
type CashInInput struct {
	WalletID   string
	Amount     decimal.Decimal
	PaymentRef string
	Reference  string
	Metadata   map[string]string
}

// EnsureAccount opens the ledger account for a wallet if it does not exist.
func (s *Service) EnsureAccount(ctx context.Context, walletID string) error {
	return s.store.EnsureAccount(ctx, walletID)
}

// Balance returns the cached balance of a wallet.
func (s *Service) Balance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, walletID)
}

// Transaction fetches a single transaction.
func (s *Service) Transaction(ctx context.Context, id string) (Transaction, error) {
	return s.store.Transaction(ctx, id)
}

// Transactions lists transactions matching filter.
func (s *Service) Transactions(ctx context.Context, filter Filter) (Page, error) {
	return s.store.Transactions(ctx, filter)
}

// Totals aggregates a wallet's ledger.
func (s *Service) Totals(ctx context.Context, walletID string) (Totals, error) {
	return s.store.Totals(ctx, walletID)
}

// FundedAccounts lists wallets whose balance is above zero.
func (s *Service) FundedAccounts(ctx context.Context) ([]string, error) {
	return s.store.FundedAccounts(ctx)
}

// WithWallet runs fn inside the wallet's atomic scope.
func (s *Service) WithWallet(ctx context.Context, walletID string, fn func(ctx context.Context, u *Unit) error) error {
	return s.store.WithWallet(ctx, walletID, func(tx StoreTx) error {
		return fn(ctx, &Unit{tx: tx, walletID: walletID, now: s.now})
	})
}

// CashIn records a COMPLETED credit and raises the balance by amount. A
// repeated reference returns the original row with ErrDuplicateTransaction.
func (s *Service) CashIn(ctx context.Context, input CashInInput) (Transaction, error) {
	if err := checkAmount(input.Amount); err != nil {
		return Transaction{}, err
	}

	var out Transaction
	err := s.WithWallet(ctx, input.WalletID, func(ctx context.Context, u *Unit) error {
		if input.Reference != "" {
			existing, found, err := u.tx.FindByReference(ctx, TypeCashIn, input.Reference)
			if err != nil {
				return err
			}
			if found {
				out = existing
				return ErrDuplicateTransaction
			}
		}

		t := u.newTransaction(TypeCashIn, input.Amount, StatusCompleted)
		t.Reference = input.Reference
		t.PaymentRef = input.PaymentRef
		t.Metadata = input.Metadata

		created, err := u.credit(ctx, t)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return out, err
		}
		return Transaction{}, fmt.Errorf("cash in: %w", err)
	}
	return out, nil
}

// Payout opens a PENDING payout debiting amount immediately.
func (s *Service) Payout(ctx context.Context, walletID string, amount decimal.Decimal, correlationID string) (Transaction, error) {
	var out Transaction
	err := s.WithWallet(ctx, walletID, func(ctx context.Context, u *Unit) error {
		created, err := u.Payout(ctx, amount, correlationID, nil)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("payout: %w", err)
	}
	return out, nil
}

// Unit exposes ledger operations bound to one locked wallet. It is only valid
// inside the WithWallet callback that produced it.
type Unit struct {
	tx       StoreTx
	walletID string
	now      func() time.Time
}

// WalletID returns the locked wallet.
func (u *Unit) WalletID() string { return u.walletID }

// Balance returns the balance as seen inside the unit.
func (u *Unit) Balance() decimal.Decimal { return u.tx.Balance() }

// PendingPayout returns the wallet's pending payout, if any.
func (u *Unit) PendingPayout(ctx context.Context) (Transaction, bool, error) {
	return u.tx.PendingPayout(ctx)
}

// Transaction loads a transaction of the locked wallet.
func (u *Unit) Transaction(ctx context.Context, id string) (Transaction, error) {
	t, err := u.tx.Transaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.WalletID != u.walletID {
		return Transaction{}, Invalid(ReasonWrongWallet)
	}
	return t, nil
}

// Related lists transactions of typ linked to id.
func (u *Unit) Related(ctx context.Context, id string, typ Type) ([]Transaction, error) {
	return u.tx.Related(ctx, id, typ)
}

// Payout creates a PENDING PAYOUT of -amount. It enforces the single pending
// payout rule and never overdraws the wallet.
func (u *Unit) Payout(ctx context.Context, amount decimal.Decimal, correlationID string, metadata map[string]string) (Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}
	if _, pending, err := u.tx.PendingPayout(ctx); err != nil {
		return Transaction{}, err
	} else if pending {
		return Transaction{}, Invalid(ReasonPendingPayout)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	t := u.newTransaction(TypePayout, amount.Neg(), StatusPending)
	t.Reference = correlationID
	t.Metadata = metadata
	return u.debit(ctx, t)
}

// Fee creates a PENDING FEE of -amount linked to payout.
func (u *Unit) Fee(ctx context.Context, payout Transaction, amount decimal.Decimal) (Transaction, error) {
	if payout.Type != TypePayout {
		return Transaction{}, Invalid(ReasonFeeWithoutPayout)
	}
	if payout.WalletID != u.walletID {
		return Transaction{}, Invalid(ReasonWrongWallet)
	}
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}

	t := u.newTransaction(TypeFee, amount.Neg(), payout.Status)
	t.RelatedID = payout.ID
	t.Reference = payout.Reference
	return u.debit(ctx, t)
}

// Reverse credits back the magnitude of a PAYOUT or FEE debit as a COMPLETED
// compensating row linked to the original. The original row is untouched.
func (u *Unit) Reverse(ctx context.Context, original Transaction) (Transaction, error) {
	var typ Type
	switch original.Type {
	case TypePayout:
		typ = TypePayoutReversal
	case TypeFee:
		typ = TypeFeeReversal
	default:
		return Transaction{}, Invalid(ReasonNotReversible)
	}
	if original.WalletID != u.walletID {
		return Transaction{}, Invalid(ReasonWrongWallet)
	}

	t := u.newTransaction(typ, original.Magnitude(), StatusCompleted)
	t.RelatedID = original.ID
	t.Reference = original.Reference
	return u.credit(ctx, t)
}

// SetStatus moves a PENDING transaction to status. Terminal rows never change.
func (u *Unit) SetStatus(ctx context.Context, t Transaction, status Status) (Transaction, error) {
	if t.Status.Terminal() {
		return Transaction{}, Invalid(ReasonTerminalStatus)
	}
	if !status.Valid() {
		return Transaction{}, fmt.Errorf("unknown status %q", status)
	}
	at := u.now()
	if err := u.tx.UpdateStatus(ctx, t.ID, status, at); err != nil {
		return Transaction{}, err
	}
	t.Status = status
	t.UpdatedAt = at
	return t, nil
}

func (u *Unit) credit(ctx context.Context, t Transaction) (Transaction, error) {
	if err := u.tx.Insert(ctx, t); err != nil {
		return Transaction{}, err
	}
	if err := u.tx.AddBalance(ctx, t.Amount); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (u *Unit) debit(ctx context.Context, t Transaction) (Transaction, error) {
	if u.tx.Balance().LessThan(t.Magnitude()) {
		return Transaction{}, ErrInsufficientBalance
	}
	if err := u.tx.Insert(ctx, t); err != nil {
		return Transaction{}, err
	}
	if err := u.tx.AddBalance(ctx, t.Amount); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (u *Unit) newTransaction(typ Type, amount decimal.Decimal, status Status) Transaction {
	now := u.now()
	return Transaction{
		ID:        uuid.NewString(),
		WalletID:  u.walletID,
		Type:      typ,
		Amount:    amount,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid(ReasonNonPositive)
	}
	if !amount.Equal(amount.Round(2)) {
		return Invalid(ReasonPrecision)
	}
	return nil
}

// Reconciliation compares the cached balance with the sum of ledger rows.
type Reconciliation struct {
	WalletID  string
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
}

// Consistent reports whether the cached balance equals the ledger sum.
func (r Reconciliation) Consistent() bool {
	return r.Balance.Equal(r.LedgerSum)
}

// Reconcile sums every transaction of the wallet, whatever its status, and
// compares the result with the cached balance.
func (s *Service) Reconcile(ctx context.Context, walletID string) (Reconciliation, error) {
	var rec Reconciliation
	err := s.store.WithWallet(ctx, walletID, func(tx StoreTx) error {
		page, err := s.store.Transactions(ctx, Filter{WalletID: walletID})
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, t := range page.Items {
			sum = sum.Add(t.Amount)
		}
		rec = Reconciliation{WalletID: walletID, Balance: tx.Balance(), LedgerSum: sum}
		return nil
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}
	return rec, nil
}
