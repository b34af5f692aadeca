package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that funds a wallet through a regular cash-in
// so the seeded balance is backed by a ledger row.
func SeedBalance(ctx context.Context, svc *Service, walletID, amount string) Transaction {
	t, err := svc.CashIn(ctx, CashInInput{
		WalletID:  walletID,
		Amount:    decimal.RequireFromString(amount),
		Reference: "seed-" + uuid.NewString(),
	})
	if err != nil {
		panic(fmt.Sprintf("seed balance for %s: %v", walletID, err))
	}
	return t
}
