package payouts

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/wallet"
)

// Handler exposes payout endpoints.
type Handler struct {
	orchestrator *Orchestrator
	sweeper      *Sweeper
	checker      access.Checker
}

// NewHandler constructs a payout handler.
func NewHandler(orchestrator *Orchestrator, sweeper *Sweeper, checker access.Checker) *Handler {
	return &Handler{orchestrator: orchestrator, sweeper: sweeper, checker: checker}
}

type initiateResponse struct {
	Payout wallet.TransactionResponse `json:"payout"`
	Gross  string                     `json:"gross_amount"`
	Fee    string                     `json:"fee_amount"`
}

type finalizeRequest struct {
	Success *bool `json:"success"`
}

type previewResponse struct {
	WalletID        string     `json:"wallet_id"`
	Currency        string     `json:"currency"`
	Payable         string     `json:"payable"`
	Fee             string     `json:"fee"`
	Net             string     `json:"net"`
	Eligible        bool       `json:"eligible"`
	Reason          string     `json:"reason,omitempty"`
	PendingPayoutID string     `json:"pending_payout_id,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

type sweepFailure struct {
	WalletID string `json:"wallet_id"`
	Error    string `json:"error"`
}

type sweepResponse struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Attempted  int            `json:"attempted"`
	Initiated  []string       `json:"initiated"`
	Failures   []sweepFailure `json:"failures"`
}

// Initiate pays out the wallet's full balance.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	p, _ := access.FromContext(c.UserContext())
	payout, err := h.orchestrator.InitiatePayout(c.UserContext(), c.Params("walletId"), p)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(initiateResponse{
		Payout: wallet.NewTransactionResponse(payout),
		Gross:  payout.Metadata[MetaGrossAmount],
		Fee:    payout.Metadata[MetaFeeAmount],
	})
}

// Finalize settles a pending payout with the provider outcome.
func (h *Handler) Finalize(c *fiber.Ctx) error {
	var req finalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Success == nil {
		return fiber.NewError(http.StatusBadRequest, "success is required")
	}
	payout, err := h.orchestrator.Finalize(c.UserContext(), c.Params("transactionId"), *req.Success)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"payout": wallet.NewTransactionResponse(payout)})
}

// Preview shows what a payout of the wallet would look like now.
func (h *Handler) Preview(c *fiber.Ctx) error {
	preview, err := h.orchestrator.Preview(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return err
	}
	p, _ := access.FromContext(c.UserContext())
	if !h.checker.CanAccessWallet(p, preview.CreatorID) {
		return fiber.NewError(http.StatusForbidden, "permission denied")
	}

	resp := previewResponse{
		WalletID:        preview.WalletID,
		Currency:        preview.Currency,
		Payable:         preview.Split.Payable.StringFixed(2),
		Fee:             preview.Split.Fee.StringFixed(2),
		Net:             preview.Split.Net.StringFixed(2),
		Eligible:        preview.Eligible,
		Reason:          preview.Reason,
		PendingPayoutID: preview.PendingPayoutID,
	}
	if !preview.NextRun.IsZero() {
		resp.NextRun = &preview.NextRun
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Sweep triggers an out-of-schedule sweep on behalf of the caller.
func (h *Handler) Sweep(c *fiber.Ctx) error {
	p, _ := access.FromContext(c.UserContext())
	report, err := h.sweeper.Run(c.UserContext(), p)
	if err != nil {
		return err
	}
	resp := sweepResponse{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Attempted:  report.Attempted,
		Initiated:  append([]string{}, report.Initiated...),
		Failures:   make([]sweepFailure, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, sweepFailure{WalletID: f.WalletID, Error: f.Err.Error()})
	}
	return c.Status(http.StatusOK).JSON(resp)
}
