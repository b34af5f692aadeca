package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tip-zed/tipzed/internal/apperr"
	"github.com/tip-zed/tipzed/internal/ledger"
)

// ErrNotFound is returned when a wallet does not exist.
var ErrNotFound = apperr.NotFound("wallet_not_found", "Wallet not found")

// Wallet holds a creator's balance metadata. The balance itself lives on the
// wallet's ledger account.
type Wallet struct {
	ID         string
	CreatorID  string
	Currency   string
	IsVerified bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PayoutEligible reports whether the wallet's flags allow a payout.
func (w Wallet) PayoutEligible() bool {
	return w.IsActive && w.IsVerified
}

// Summary is the read projection shown on a creator dashboard.
type Summary struct {
	Wallet        Wallet
	Balance       decimal.Decimal
	CashIn        decimal.Decimal
	CashOut       decimal.Decimal
	PendingPayout decimal.Decimal
	Fees          decimal.Decimal
	AsOf          time.Time
}

// TransactionQuery selects a page of a wallet's history. Page is 1-based.
type TransactionQuery struct {
	Types    []ledger.Type
	Status   ledger.Status
	Page     int
	PageSize int
}

// TransactionPage is one page of wallet history.
type TransactionPage struct {
	Items    []ledger.Transaction
	Total    int
	Page     int
	PageSize int
}

// HasNext reports whether another page follows.
func (p TransactionPage) HasNext() bool {
	return p.Page*p.PageSize < p.Total
}
