package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/middleware"
	"github.com/tip-zed/tipzed/internal/payouts"
)

// RegisterPayoutRoutes wires payout initiation, settlement and sweeps.
func RegisterPayoutRoutes(r fiber.Router, s *Services, idempotent fiber.Handler) {
	h := payouts.NewHandler(s.Payouts, s.Sweeper, s.Checker)
	manage := middleware.RequireCapability(s.Checker, access.CapabilityManagePayouts)

	r.Get("/wallets/:walletId/payouts/preview", h.Preview)
	r.Post("/wallets/:walletId/payouts", manage, idempotent, h.Initiate)
	r.Post("/payouts/sweep", manage, idempotent, h.Sweep)
	r.Post("/payouts/:transactionId/finalize", manage, idempotent, h.Finalize)
}
