package cashin

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPaymentNotConfirmed is returned when the gateway does not vouch for a payment.
var ErrPaymentNotConfirmed = errors.New("payment not confirmed")

// Payment is an incoming tip as reported by the caller.
type Payment struct {
	PaymentRef string
	Amount     decimal.Decimal
	Currency   string
}

// Confirmation is the gateway's view of a settled payment.
type Confirmation struct {
	PaymentRef string
	Amount     decimal.Decimal
}

// Gateway confirms that a payment was actually collected.
type Gateway interface {
	Confirm(ctx context.Context, payment Payment) (Confirmation, error)
}

// StaticGateway trusts the submitted payment. Used when no gateway
// integration is configured.
type StaticGateway struct{}

// Confirm echoes the payment back.
func (StaticGateway) Confirm(_ context.Context, payment Payment) (Confirmation, error) {
	if payment.PaymentRef == "" {
		return Confirmation{}, ErrPaymentNotConfirmed
	}
	return Confirmation{PaymentRef: payment.PaymentRef, Amount: payment.Amount}, nil
}
