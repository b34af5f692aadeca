package cashin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/notification"
	"github.com/tip-zed/tipzed/internal/wallet"
)

// Service records confirmed incoming payments on creator wallets.
type Service struct {
	ledger   *ledger.Service
	wallets  *wallet.Service
	gateway  Gateway
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a cash-in service. A nil gateway falls back to StaticGateway.
func NewService(led *ledger.Service, wallets *wallet.Service, gateway Gateway, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if led == nil || wallets == nil {
		return nil, fmt.Errorf("ledger and wallet services are required")
	}
	if gateway == nil {
		gateway = StaticGateway{}
	}
	return &Service{ledger: led, wallets: wallets, gateway: gateway, notifier: notifier, logger: logger}, nil
}

// Input captures a cash-in request. Reference defaults to PaymentRef so a
// gateway retrying the same payment is deduplicated.
type Input struct {
	WalletID   string
	Amount     decimal.Decimal
	Currency   string
	PaymentRef string
	Reference  string
	Metadata   map[string]string
}

// Result is the outcome of a cash-in.
type Result struct {
	Transaction ledger.Transaction
	Balance     decimal.Decimal
}

// CashIn confirms the payment with the gateway and credits the wallet. A
// repeated reference returns the original transaction together with
// ledger.ErrDuplicateTransaction.
func (s *Service) CashIn(ctx context.Context, input Input) (Result, error) {
	if strings.TrimSpace(input.PaymentRef) == "" {
		return Result{}, ledger.Invalid("Payment reference is required")
	}
	if input.Reference == "" {
		input.Reference = input.PaymentRef
	}

	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return Result{}, err
	}
	if !w.IsActive {
		return Result{}, ledger.Invalid(ledger.ReasonWalletInactive)
	}
	if input.Currency != "" && !strings.EqualFold(input.Currency, w.Currency) {
		return Result{}, ledger.Invalid(fmt.Sprintf("Wallet only accepts %s", w.Currency))
	}

	confirmation, err := s.gateway.Confirm(ctx, Payment{PaymentRef: input.PaymentRef, Amount: input.Amount, Currency: w.Currency})
	if err != nil {
		return Result{}, fmt.Errorf("confirm payment %s: %w", input.PaymentRef, err)
	}
	if !confirmation.Amount.Equal(input.Amount) {
		return Result{}, ledger.Invalid("Amount does not match the confirmed payment")
	}

	t, err := s.ledger.CashIn(ctx, ledger.CashInInput{
		WalletID:   w.ID,
		Amount:     confirmation.Amount,
		PaymentRef: confirmation.PaymentRef,
		Reference:  input.Reference,
		Metadata:   input.Metadata,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		return Result{}, err
	}
	balance, balErr := s.ledger.Balance(ctx, w.ID)
	if balErr != nil {
		return Result{}, balErr
	}
	if err != nil {
		s.logger.Info("duplicate cash-in ignored", slog.String("wallet_id", w.ID), slog.String("reference", input.Reference))
		return Result{Transaction: t, Balance: balance}, err
	}

	s.logger.Info("cash-in recorded",
		slog.String("wallet_id", w.ID),
		slog.String("transaction_id", t.ID),
		slog.String("amount", t.Amount.StringFixed(2)))
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindCashIn,
		Destination: w.CreatorID,
		Body:        fmt.Sprintf("You received %s %s", t.Amount.StringFixed(2), w.Currency),
		Attributes:  map[string]string{"wallet_id": w.ID, "transaction_id": t.ID},
	})
	return Result{Transaction: t, Balance: balance}, nil
}
