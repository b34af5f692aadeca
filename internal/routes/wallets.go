package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/cashin"
	"github.com/tip-zed/tipzed/internal/middleware"
	"github.com/tip-zed/tipzed/internal/wallet"
)

// RegisterWalletRoutes wires wallet reads, staff flags and cash-in intake.
func RegisterWalletRoutes(r fiber.Router, s *Services, idempotent fiber.Handler) {
	h := wallet.NewHandler(s.Wallets, s.Checker)
	cash := cashin.NewHandler(s.CashIn)
	manage := middleware.RequireCapability(s.Checker, access.CapabilityManageWallets)

	r.Get("/wallets/:walletId", h.Summary)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
	r.Patch("/wallets/:walletId/verification", manage, h.SetVerification)
	r.Patch("/wallets/:walletId/activation", manage, h.SetActivation)
	r.Post("/wallets/:walletId/cash-in", manage, idempotent, cash.CashIn)
}
