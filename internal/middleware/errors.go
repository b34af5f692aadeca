package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/apperr"
	"github.com/tip-zed/tipzed/internal/ledger"
)

type errorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandler renders domain errors as {"status":"failed","error":code,"message":reason}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code, message := Classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err))
			message = "internal server error"
		}
		return c.Status(status).JSON(errorResponse{Status: "failed", Error: code, Message: message})
	}
}

// Classify maps an error to its HTTP status, API code and client message.
func Classify(err error) (int, string, string) {
	var (
		apiErr   *apperr.Error
		invalid  *ledger.InvalidTransactionError
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status, apiErr.Code, apiErr.Message
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, "invalid_transaction", invalid.Reason
	case errors.Is(err, ledger.ErrInvalidTransaction):
		return http.StatusUnprocessableEntity, "invalid_transaction", "Invalid transaction"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance", "Insufficient balance"
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return http.StatusConflict, "duplicate_transaction", "Duplicate transaction"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "wallet_not_found", "Wallet not found"
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found", "Transaction not found"
	case errors.Is(err, access.ErrUnauthenticated), errors.Is(err, access.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated", "Authentication required"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, statusCode(fiberErr.Code), fiberErr.Message
	default:
		return http.StatusInternalServerError, "internal_error", err.Error()
	}
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
