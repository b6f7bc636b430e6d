package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindAccountOpened is sent after a new account is registered.
	KindAccountOpened = "account_opened"
	// KindDeposit is sent after a deposit commits.
	KindDeposit = "deposit"
	// KindWithdrawal is sent after cash is dispensed.
	KindWithdrawal = "withdrawal"
	// KindPINChanged is sent after the PIN of an account is replaced.
	KindPINChanged = "pin_changed"
)

// Message describes a notification payload. Destination is the account the
// event belongs to.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
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
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{"kind", message.Kind, "destination", message.Destination, "body", message.Body}
	for k, v := range message.Attributes {
		attrs = append(attrs, k, v)
	}
	n.logger.Info("notification", attrs...)
	return nil
}

// Discard drops every message.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }
