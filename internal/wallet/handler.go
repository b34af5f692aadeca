package wallet

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
	checker access.Checker
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, checker access.Checker) *Handler {
	return &Handler{service: service, checker: checker}
}

// Summary returns the wallet balance and totals.
func (h *Handler) Summary(c *fiber.Ctx) error {
	w, err := h.authorize(c)
	if err != nil {
		return err
	}
	summary, err := h.service.Summary(c.UserContext(), w.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(summaryResponse{
		Wallet:        NewWalletResponse(summary.Wallet),
		Balance:       summary.Balance.StringFixed(2),
		CashIn:        summary.CashIn.StringFixed(2),
		CashOut:       summary.CashOut.StringFixed(2),
		PendingPayout: summary.PendingPayout.StringFixed(2),
		Fees:          summary.Fees.StringFixed(2),
		Currency:      summary.Wallet.Currency,
		AsOf:          summary.AsOf,
	})
}

// Transactions lists the wallet's history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	w, err := h.authorize(c)
	if err != nil {
		return err
	}

	q := TransactionQuery{
		Status:   ledger.Status(strings.ToUpper(c.Query("status"))),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", defaultPageSize),
	}
	if raw := c.Query("type"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				q.Types = append(q.Types, ledger.Type(strings.ToUpper(part)))
			}
		}
	}

	page, err := h.service.Transactions(c.UserContext(), w.ID, q)
	if err != nil {
		return err
	}
	items := make([]TransactionResponse, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, NewTransactionResponse(t))
	}
	return c.Status(http.StatusOK).JSON(pageResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
		HasNext:  page.HasNext(),
	})
}

// SetVerification records a KYC decision. Staff only; enforced by the route.
func (h *Handler) SetVerification(c *fiber.Ctx) error {
	var req verificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Verified == nil {
		return fiber.NewError(http.StatusBadRequest, "verified is required")
	}
	w, err := h.service.SetVerified(c.UserContext(), c.Params("walletId"), *req.Verified)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(NewWalletResponse(w))
}

// SetActivation enables or disables a wallet. Staff only; enforced by the route.
func (h *Handler) SetActivation(c *fiber.Ctx) error {
	var req activationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Active == nil {
		return fiber.NewError(http.StatusBadRequest, "active is required")
	}
	w, err := h.service.SetActive(c.UserContext(), c.Params("walletId"), *req.Active)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(NewWalletResponse(w))
}

func (h *Handler) authorize(c *fiber.Ctx) (Wallet, error) {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return Wallet{}, err
	}
	p, _ := access.FromContext(c.UserContext())
	if !h.checker.CanAccessWallet(p, w.CreatorID) {
		return Wallet{}, fiber.NewError(http.StatusForbidden, "permission denied")
	}
	return w, nil
}
