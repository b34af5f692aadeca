package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTransaction marks a business-rule violation. The concrete error
	// is an *InvalidTransactionError carrying a human readable reason.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInsufficientBalance occurs when a debit would drive the wallet balance
	// below zero, including the zero-balance case.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateTransaction indicates a transaction with the same reference
	// already exists and the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned when no ledger account exists for a wallet.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrTransactionNotFound is returned when a transaction id is unknown.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Reasons reported through InvalidTransactionError.
const (
	ReasonPendingPayout    = "A payout is already pending for this wallet"
	ReasonOnlyPending      = "Only pending payouts can be finalized"
	ReasonNonPositive      = "Amount must be greater than zero"
	ReasonPrecision        = "Amount must have at most two decimal places"
	ReasonTerminalStatus   = "Transaction is already in a terminal status"
	ReasonNotReversible    = "Only payout and fee debits can be reversed"
	ReasonWrongWallet      = "Transaction does not belong to this wallet"
	ReasonFeeWithoutPayout = "Fees can only be attached to a payout"
	ReasonWalletInactive   = "Wallet is inactive"
	ReasonKYCNotVerified   = "KYC not verified. Payouts are blocked"
)

// InvalidTransactionError carries the reason a transaction was rejected.
type InvalidTransactionError struct {
	Reason string
}

func (e *InvalidTransactionError) Error() string { return e.Reason }

// Is reports ErrInvalidTransaction so callers can branch with errors.Is.
func (e *InvalidTransactionError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

// Invalid builds an InvalidTransactionError with the given reason.
func Invalid(reason string) error {
	return &InvalidTransactionError{Reason: reason}
}

// Type enumerates ledger transaction kinds.
type Type string

const (
	TypeCashIn         Type = "CASH_IN"
	TypePayout         Type = "PAYOUT"
	TypeFee            Type = "FEE"
	TypePayoutReversal Type = "PAYOUT_REVERSAL"
	TypeFeeReversal    Type = "FEE_REVERSAL"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeCashIn, TypePayout, TypeFee, TypePayoutReversal, TypeFeeReversal:
		return true
	}
	return false
}

// Status is the settlement state of a transaction. COMPLETED and FAILED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction is an immutable signed entry against a wallet. Only Status and
// UpdatedAt change after creation.
type Transaction struct {
	ID         string
	WalletID   string
	RelatedID  string
	Type       Type
	Amount     decimal.Decimal
	Status     Status
	Reference  string
	PaymentRef string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Magnitude returns the absolute amount of the transaction.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// Filter narrows a transaction listing.
type Filter struct {
	WalletID string
	Types    []Type
	Status   Status
	Limit    int
	Offset   int
}

// Page is one slice of a filtered listing, newest first.
type Page struct {
	Items []Transaction
	Total int
}

// Totals aggregates a wallet's ledger for read projections.
type Totals struct {
	CashIn        decimal.Decimal
	PaidOut       decimal.Decimal
	PendingPayout decimal.Decimal
	Fees          decimal.Decimal
}

// Store persists ledger accounts and their transactions.
type Store interface {
	EnsureAccount(ctx context.Context, walletID string) error
	Balance(ctx context.Context, walletID string) (decimal.Decimal, error)
	Transaction(ctx context.Context, id string) (Transaction, error)
	Transactions(ctx context.Context, filter Filter) (Page, error)
	Totals(ctx context.Context, walletID string) (Totals, error)
	FundedAccounts(ctx context.Context) ([]string, error)

	// WithWallet runs fn while holding the wallet's exclusive lock. Every
	// write made through the StoreTx is applied atomically when fn returns
	// nil and discarded otherwise.
	WithWallet(ctx context.Context, walletID string, fn func(tx StoreTx) error) error
}

// StoreTx is the view of one wallet inside a WithWallet scope.
type StoreTx interface {
	Balance() decimal.Decimal
	Transaction(ctx context.Context, id string) (Transaction, error)
	FindByReference(ctx context.Context, typ Type, reference string) (Transaction, bool, error)
	PendingPayout(ctx context.Context) (Transaction, bool, error)
	Related(ctx context.Context, id string, typ Type) ([]Transaction, error)
	Insert(ctx context.Context, t Transaction) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	AddBalance(ctx context.Context, delta decimal.Decimal) error
}
