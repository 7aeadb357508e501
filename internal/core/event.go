package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// WebhookEventType is the closed set of gateway webhook events the
// engine reconciles. Unknown types are acknowledged and dropped.
type WebhookEventType string

const (
	WebhookPaymentCaptured WebhookEventType = "payment.captured"
	WebhookPaymentFailed   WebhookEventType = "payment.failed"
	WebhookRefundProcessed WebhookEventType = "refund.processed"
)

// ParseWebhookEventType maps a raw event string onto the closed set.
func ParseWebhookEventType(raw string) (WebhookEventType, bool) {
	switch WebhookEventType(raw) {
	case WebhookPaymentCaptured, WebhookPaymentFailed, WebhookRefundProcessed:
		return WebhookEventType(raw), true
	}
	return "", false
}

// PaymentEvent is published to the message broker after a committed
// state transition. Exactly one event per transition: the losing racer
// of a duplicate delivery no-ops and publishes nothing.
type PaymentEvent struct {
	EventID    string           `json:"event_id"`
	Type       WebhookEventType `json:"type"`
	OrderID    int64            `json:"order_id"`
	PaymentID  string           `json:"payment_id"`
	RefundID   string           `json:"refund_id,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Currency   string           `json:"currency"`
	OccurredAt time.Time        `json:"occurred_at"`
}
