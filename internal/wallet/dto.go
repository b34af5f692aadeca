package wallet

import (
	"time"

	"github.com/tip-zed/tipzed/internal/ledger"
)

// TransactionResponse is the JSON shape of a ledger row.
type TransactionResponse struct {
	ID         string            `json:"id"`
	WalletID   string            `json:"wallet_id"`
	RelatedID  string            `json:"related_id,omitempty"`
	Type       ledger.Type       `json:"type"`
	Amount     string            `json:"amount"`
	Status     ledger.Status     `json:"status"`
	Reference  string            `json:"reference,omitempty"`
	PaymentRef string            `json:"payment_ref,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewTransactionResponse converts a ledger row for the API.
func NewTransactionResponse(t ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:         t.ID,
		WalletID:   t.WalletID,
		RelatedID:  t.RelatedID,
		Type:       t.Type,
		Amount:     t.Amount.StringFixed(2),
		Status:     t.Status,
		Reference:  t.Reference,
		PaymentRef: t.PaymentRef,
		Metadata:   t.Metadata,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

type walletResponse struct {
	ID         string    `json:"id"`
	CreatorID  string    `json:"creator_id"`
	Currency   string    `json:"currency"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewWalletResponse converts wallet metadata for the API.
func NewWalletResponse(w Wallet) any {
	return walletResponse{
		ID:         w.ID,
		CreatorID:  w.CreatorID,
		Currency:   w.Currency,
		IsVerified: w.IsVerified,
		IsActive:   w.IsActive,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

type summaryResponse struct {
	Wallet        any       `json:"wallet"`
	Balance       string    `json:"balance"`
	CashIn        string    `json:"cash_in"`
	CashOut       string    `json:"cash_out"`
	PendingPayout string    `json:"pending_payout"`
	Fees          string    `json:"fees"`
	Currency      string    `json:"currency"`
	AsOf          time.Time `json:"as_of"`
}

type pageResponse struct {
	Items    []TransactionResponse `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	HasNext  bool                  `json:"has_next"`
}

type verificationRequest struct {
	Verified *bool `json:"verified"`
}

type activationRequest struct {
	Active *bool `json:"active"`
}
