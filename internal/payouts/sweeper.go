package payouts

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/wallet"
)

const defaultSweepConcurrency = 4

// SweepFailure records a wallet the sweep could not pay out.
type SweepFailure struct {
	WalletID string
	Err      error
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Initiated  []string
	Failures   []SweepFailure
}

// Sweeper initiates payouts for every eligible funded wallet.
type Sweeper struct {
	orchestrator *Orchestrator
	wallets      *wallet.Service
	logger       *slog.Logger
	concurrency  int
}

// NewSweeper builds a sweeper. concurrency below one falls back to a small default.
func NewSweeper(orchestrator *Orchestrator, wallets *wallet.Service, logger *slog.Logger, concurrency int) *Sweeper {
	if concurrency < 1 {
		concurrency = defaultSweepConcurrency
	}
	return &Sweeper{orchestrator: orchestrator, wallets: wallets, logger: logger, concurrency: concurrency}
}

// Run initiates a payout for each candidate wallet. A failing wallet is
// logged and recorded in the report; it never stops the others. The
// returned error is only set when candidates could not be listed.
func (s *Sweeper) Run(ctx context.Context, principal access.Principal) (SweepReport, error) {
	report := SweepReport{StartedAt: s.orchestrator.now()}

	candidates, err := s.wallets.PayoutCandidates(ctx)
	if err != nil {
		return report, err
	}
	report.Attempted = len(candidates)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, w := range candidates {
		g.Go(func() error {
			payout, err := s.orchestrator.InitiatePayout(gctx, w.ID, principal)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("sweep payout failed", slog.String("wallet_id", w.ID), slog.Any("error", err))
				report.Failures = append(report.Failures, SweepFailure{WalletID: w.ID, Err: err})
				return nil
			}
			report.Initiated = append(report.Initiated, payout.ID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Initiated)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].WalletID < report.Failures[j].WalletID
	})
	report.FinishedAt = s.orchestrator.now()

	s.logger.Info("payout sweep finished",
		slog.Int("attempted", report.Attempted),
		slog.Int("initiated", len(report.Initiated)),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}
