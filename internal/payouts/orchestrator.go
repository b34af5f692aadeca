package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/apperr"
	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/notification"
	"github.com/tip-zed/tipzed/internal/wallet"
)

var (
	// ErrPermissionDenied is returned when the principal may not manage payouts.
	ErrPermissionDenied = apperr.New(http.StatusForbidden, "permission_denied", "Permission denied")
	// ErrPayoutNotFound is returned when finalizing an unknown transaction id.
	ErrPayoutNotFound = apperr.NotFound("payout_not_found", "Payout not found")
)

// Payout metadata keys.
const (
	MetaGrossAmount = "gross_amount"
	MetaFeeAmount   = "fee_amount"
	MetaInitiatedBy = "initiated_by"
)

// Config holds the fee policy and the sweep schedule used for previews.
type Config struct {
	FeeRate            decimal.Decimal
	RefundFeeOnFailure bool
	// Schedule is nil when automatic sweeps are disabled.
	Schedule cron.Schedule
}

// Orchestrator drives payouts from initiation to a terminal status.
type Orchestrator struct {
	ledger   *ledger.Service
	wallets  *wallet.Service
	checker  access.Checker
	notifier notification.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewOrchestrator builds a payout orchestrator.
func NewOrchestrator(led *ledger.Service, wallets *wallet.Service, checker access.Checker, notifier notification.Notifier, logger *slog.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		ledger:   led,
		wallets:  wallets,
		checker:  checker,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Split is the division of a payable balance into fee and net payout.
type Split struct {
	Payable decimal.Decimal
	Fee     decimal.Decimal
	Net     decimal.Decimal
}

// SplitFor computes fee = round(payable * rate, 2) half-up and net = payable - fee.
func (o *Orchestrator) SplitFor(payable decimal.Decimal) Split {
	fee := payable.Mul(o.cfg.FeeRate).Round(2)
	return Split{Payable: payable, Fee: fee, Net: payable.Sub(fee)}
}

// InitiatePayout sweeps the wallet's whole balance into a PENDING payout
// plus its PENDING fee. Both rows and the debit are one atomic unit.
func (o *Orchestrator) InitiatePayout(ctx context.Context, walletID string, principal access.Principal) (ledger.Transaction, error) {
	if !o.checker.Can(principal, access.CapabilityManagePayouts) {
		return ledger.Transaction{}, ErrPermissionDenied
	}

	w, err := o.wallets.Get(ctx, walletID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !w.IsActive {
		return ledger.Transaction{}, ledger.Invalid(ledger.ReasonWalletInactive)
	}
	if !w.IsVerified {
		return ledger.Transaction{}, ledger.Invalid(ledger.ReasonKYCNotVerified)
	}

	var (
		payout ledger.Transaction
		split  Split
	)
	err = o.ledger.WithWallet(ctx, w.ID, func(ctx context.Context, u *ledger.Unit) error {
		if _, pending, err := u.PendingPayout(ctx); err != nil {
			return err
		} else if pending {
			return ledger.Invalid(ledger.ReasonPendingPayout)
		}

		payable := u.Balance()
		if !payable.IsPositive() {
			return ledger.ErrInsufficientBalance
		}
		split = o.SplitFor(payable)
		if !split.Net.IsPositive() {
			return ledger.ErrInsufficientBalance
		}

		created, err := u.Payout(ctx, split.Net, "", map[string]string{
			MetaGrossAmount: split.Payable.StringFixed(2),
			MetaFeeAmount:   split.Fee.StringFixed(2),
			MetaInitiatedBy: principal.ID,
		})
		if err != nil {
			return err
		}
		if split.Fee.IsPositive() {
			if _, err := u.Fee(ctx, created, split.Fee); err != nil {
				return err
			}
		}
		payout = created
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("initiate payout for wallet %s: %w", w.ID, err)
	}

	o.logger.Info("payout initiated",
		slog.String("wallet_id", w.ID),
		slog.String("transaction_id", payout.ID),
		slog.String("net", split.Net.StringFixed(2)),
		slog.String("fee", split.Fee.StringFixed(2)),
		slog.String("principal_id", principal.ID))
	notification.Deliver(ctx, o.notifier, o.logger, notification.Message{
		Kind:        notification.KindPayoutInitiated,
		Destination: w.CreatorID,
		Body:        fmt.Sprintf("A payout of %s %s is on its way", split.Net.StringFixed(2), w.Currency),
		Attributes:  map[string]string{"wallet_id": w.ID, "transaction_id": payout.ID},
	})
	return payout, nil
}

// Finalize settles a PENDING payout. On success the payout and its fee
// complete. On failure the payout fails and its amount is credited back;
// the fee is either retained or refunded according to the configured policy.
func (o *Orchestrator) Finalize(ctx context.Context, payoutID string, success bool) (ledger.Transaction, error) {
	t, err := o.ledger.Transaction(ctx, payoutID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return ledger.Transaction{}, ErrPayoutNotFound
		}
		return ledger.Transaction{}, err
	}
	if t.Type != ledger.TypePayout {
		return ledger.Transaction{}, ledger.Invalid(ledger.ReasonOnlyPending)
	}

	var final ledger.Transaction
	err = o.ledger.WithWallet(ctx, t.WalletID, func(ctx context.Context, u *ledger.Unit) error {
		current, err := u.Transaction(ctx, t.ID)
		if err != nil {
			return err
		}
		if current.Status != ledger.StatusPending {
			return ledger.Invalid(ledger.ReasonOnlyPending)
		}
		fees, err := u.Related(ctx, current.ID, ledger.TypeFee)
		if err != nil {
			return err
		}

		if success {
			final, err = u.SetStatus(ctx, current, ledger.StatusCompleted)
			if err != nil {
				return err
			}
			for _, fee := range fees {
				if _, err := u.SetStatus(ctx, fee, ledger.StatusCompleted); err != nil {
					return err
				}
			}
			return nil
		}

		final, err = u.SetStatus(ctx, current, ledger.StatusFailed)
		if err != nil {
			return err
		}
		if _, err := u.Reverse(ctx, final); err != nil {
			return err
		}
		for _, fee := range fees {
			if !o.cfg.RefundFeeOnFailure {
				if _, err := u.SetStatus(ctx, fee, ledger.StatusCompleted); err != nil {
					return err
				}
				continue
			}
			failedFee, err := u.SetStatus(ctx, fee, ledger.StatusFailed)
			if err != nil {
				return err
			}
			if _, err := u.Reverse(ctx, failedFee); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("finalize payout %s: %w", t.ID, err)
	}

	kind, verb := notification.KindPayoutCompleted, "completed"
	if !success {
		kind, verb = notification.KindPayoutFailed, "failed"
	}
	o.logger.Info("payout finalized",
		slog.String("wallet_id", final.WalletID),
		slog.String("transaction_id", final.ID),
		slog.String("status", string(final.Status)))
	if w, err := o.wallets.Get(ctx, final.WalletID); err == nil {
		notification.Deliver(ctx, o.notifier, o.logger, notification.Message{
			Kind:        kind,
			Destination: w.CreatorID,
			Body:        fmt.Sprintf("Your payout of %s %s %s", final.Magnitude().StringFixed(2), w.Currency, verb),
			Attributes:  map[string]string{"wallet_id": w.ID, "transaction_id": final.ID},
		})
	}
	return final, nil
}

// Preview describes what a payout would do right now.
type Preview struct {
	WalletID        string
	CreatorID       string
	Currency        string
	Split           Split
	Eligible        bool
	Reason          string
	PendingPayoutID string
	NextRun         time.Time
}

// Preview computes the payout a wallet would receive without touching the ledger.
func (o *Orchestrator) Preview(ctx context.Context, walletID string) (Preview, error) {
	w, err := o.wallets.Get(ctx, walletID)
	if err != nil {
		return Preview{}, err
	}
	balance, err := o.ledger.Balance(ctx, w.ID)
	if err != nil {
		return Preview{}, err
	}
	pending, err := o.ledger.Transactions(ctx, ledger.Filter{
		WalletID: w.ID,
		Types:    []ledger.Type{ledger.TypePayout},
		Status:   ledger.StatusPending,
		Limit:    1,
	})
	if err != nil {
		return Preview{}, err
	}

	p := Preview{WalletID: w.ID, CreatorID: w.CreatorID, Currency: w.Currency, Split: Split{
		Payable: balance, Fee: decimal.Zero, Net: decimal.Zero,
	}}
	if balance.IsPositive() {
		p.Split = o.SplitFor(balance)
	}
	if len(pending.Items) > 0 {
		p.PendingPayoutID = pending.Items[0].ID
	}
	if o.cfg.Schedule != nil {
		p.NextRun = o.cfg.Schedule.Next(o.now())
	}

	switch {
	case !w.IsActive:
		p.Reason = ledger.ReasonWalletInactive
	case !w.IsVerified:
		p.Reason = ledger.ReasonKYCNotVerified
	case p.PendingPayoutID != "":
		p.Reason = ledger.ReasonPendingPayout
	case !p.Split.Net.IsPositive():
		p.Reason = "Insufficient balance"
	default:
		p.Eligible = true
	}
	return p, nil
}
