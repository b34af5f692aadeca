package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tip-zed/tipzed/internal/ledger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo     Repository
	ledger   *ledger.Service
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a wallet service instance. currency is assigned to new wallets.
func NewService(repo Repository, ledger *ledger.Service, currency string, logger *slog.Logger) *Service {
	if currency == "" {
		currency = "ZMW"
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		currency: currency,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Provision returns the creator's wallet, creating it and its ledger account
// on first call. Repeated calls are no-ops.
func (s *Service) Provision(ctx context.Context, creatorID string) (Wallet, error) {
	if _, err := uuid.Parse(creatorID); err != nil {
		return Wallet{}, fmt.Errorf("invalid creator id %q: %w", creatorID, err)
	}

	now := s.now()
	w, created, err := s.repo.GetOrCreate(ctx, Wallet{
		ID:        uuid.NewString(),
		CreatorID: creatorID,
		Currency:  s.currency,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Wallet{}, fmt.Errorf("provision wallet: %w", err)
	}

	// Always ensure: a crash between the two writes leaves a wallet without an account.
	if err := s.ledger.EnsureAccount(ctx, w.ID); err != nil {
		return Wallet{}, fmt.Errorf("provision ledger account: %w", err)
	}
	if created {
		s.logger.Info("wallet provisioned", slog.String("wallet_id", w.ID), slog.String("creator_id", creatorID))
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByCreator retrieves the wallet owned by creatorID.
func (s *Service) GetByCreator(ctx context.Context, creatorID string) (Wallet, error) {
	return s.repo.GetByCreator(ctx, creatorID)
}

// Summary returns the wallet with its balance and ledger totals.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	balance, err := s.ledger.Balance(ctx, w.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("wallet balance: %w", err)
	}
	totals, err := s.ledger.Totals(ctx, w.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("wallet totals: %w", err)
	}
	return Summary{
		Wallet:        w,
		Balance:       balance,
		CashIn:        totals.CashIn,
		CashOut:       totals.PaidOut,
		PendingPayout: totals.PendingPayout,
		Fees:          totals.Fees,
		AsOf:          s.now(),
	}, nil
}

// Transactions returns one page of the wallet's history, newest first.
func (s *Service) Transactions(ctx context.Context, id string, q TransactionQuery) (TransactionPage, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return TransactionPage{}, err
	}
	for _, typ := range q.Types {
		if !typ.Valid() {
			return TransactionPage{}, ledger.Invalid(fmt.Sprintf("Unknown transaction type %q", typ))
		}
	}
	if q.Status != "" && !q.Status.Valid() {
		return TransactionPage{}, ledger.Invalid(fmt.Sprintf("Unknown transaction status %q", q.Status))
	}

	page := max(q.Page, 1)
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	result, err := s.ledger.Transactions(ctx, ledger.Filter{
		WalletID: id,
		Types:    q.Types,
		Status:   q.Status,
		Limit:    size,
		Offset:   (page - 1) * size,
	})
	if err != nil {
		return TransactionPage{}, fmt.Errorf("wallet transactions: %w", err)
	}
	return TransactionPage{Items: result.Items, Total: result.Total, Page: page, PageSize: size}, nil
}

// SetVerified records the KYC decision for a wallet.
func (s *Service) SetVerified(ctx context.Context, id string, verified bool) (Wallet, error) {
	w, err := s.repo.SetVerified(ctx, id, verified, s.now())
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet verification changed", slog.String("wallet_id", id), slog.Bool("verified", verified))
	return w, nil
}

// SetActive enables or disables a wallet.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Wallet, error) {
	w, err := s.repo.SetActive(ctx, id, active, s.now())
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet activation changed", slog.String("wallet_id", id), slog.Bool("active", active))
	return w, nil
}

// PayoutCandidates lists wallets that are verified, active and hold a
// positive balance.
func (s *Service) PayoutCandidates(ctx context.Context) ([]Wallet, error) {
	eligible, err := s.repo.ListPayoutEligible(ctx)
	if err != nil {
		return nil, err
	}
	funded, err := s.ledger.FundedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("funded accounts: %w", err)
	}
	positive := make(map[string]struct{}, len(funded))
	for _, id := range funded {
		positive[id] = struct{}{}
	}

	out := make([]Wallet, 0, len(eligible))
	for _, w := range eligible {
		if _, ok := positive[w.ID]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}

// IsNotFound reports whether err means the wallet or its ledger account is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ledger.ErrAccountNotFound)
}
