package notification

import (
	"context"
	"log/slog"
)

const (
	KindPayoutInitiated = "payout_initiated"
	KindPayoutCompleted = "payout_completed"
	KindPayoutFailed    = "payout_failed"
	KindCashIn          = "cash_in"
	KindWalletCreated   = "wallet_created"
)

// Message describes a notification payload. Destination is the wallet owner.
type Message struct {
	Kind        string
	Destination string
	Body        string
	Attributes  map[string]string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	}
	for k, v := range message.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "notification", attrs...)
	return nil
}

// Deliver sends message if notifier is set and logs delivery failures
// instead of returning them; notifications never fail the operation.
func Deliver(ctx context.Context, notifier Notifier, logger *slog.Logger, message Message) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, message); err != nil && logger != nil {
		logger.Warn("notification delivery failed", slog.String("kind", message.Kind), slog.Any("error", err))
	}
}
