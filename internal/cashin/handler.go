package cashin

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/wallet"
)

// Handler exposes the cash-in intake endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a cash-in handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Request is the cash-in body. Amount accepts a JSON string or number.
type Request struct {
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency"`
	PaymentRef string            `json:"payment_ref"`
	Reference  string            `json:"reference"`
	Metadata   map[string]string `json:"metadata"`
}

// Response reports the recorded transaction and resulting balance.
type Response struct {
	Transaction wallet.TransactionResponse `json:"transaction"`
	Balance     string                     `json:"balance"`
	Duplicate   bool                       `json:"duplicate"`
}

// CashIn records a confirmed payment. Replays of a known reference answer 200
// with the original transaction.
func (h *Handler) CashIn(c *fiber.Ctx) error {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.CashIn(c.UserContext(), Input{
		WalletID:   c.Params("walletId"),
		Amount:     req.Amount,
		Currency:   req.Currency,
		PaymentRef: req.PaymentRef,
		Reference:  req.Reference,
		Metadata:   req.Metadata,
	})
	status := http.StatusCreated
	if err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) {
			return err
		}
		status = http.StatusOK
	}
	return c.Status(status).JSON(Response{
		Transaction: wallet.NewTransactionResponse(result.Transaction),
		Balance:     result.Balance.StringFixed(2),
		Duplicate:   status == http.StatusOK,
	})
}
