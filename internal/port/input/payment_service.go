package input

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shopkart/payment-engine/internal/core"
)

// PaymentService is an input port (primary port) for the payment
// lifecycle. Primary adapters (HTTP handlers) will use this.
type PaymentService interface {
	// CreateOrder mints a remote gateway order for a local order and
	// persists the pending payment record. Idempotent: re-entry with an
	// existing created record returns it unchanged.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)

	// ConfirmPayment verifies a client-submitted payment confirmation
	// against the gateway and commits the captured state.
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*ConfirmPaymentResponse, error)

	// ApplyWebhookEvent applies a signature-verified gateway webhook.
	// The raw payload is the exact request body bytes.
	ApplyWebhookEvent(ctx context.Context, eventType string, rawPayload []byte) error
}

// RefundService is an input port for refund initiation.
type RefundService interface {
	// Refund initiates a refund for a captured payment. A nil amount
	// refunds the full remaining captured amount.
	Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error)
}

// CreateOrderRequest represents the request to start a checkout payment
type CreateOrderRequest struct {
	OrderID  int64
	Amount   decimal.Decimal
	Currency string
	Notes    map[string]string
}

// CreateOrderResponse carries the client token for the checkout widget
type CreateOrderResponse struct {
	RemoteOrderID string
	Amount        decimal.Decimal
	Currency      string
	Receipt       string
	Status        core.PaymentStatus
}

// ConfirmPaymentRequest represents a client-side payment confirmation
type ConfirmPaymentRequest struct {
	OrderID         int64
	RemoteOrderID   string
	RemotePaymentID string
	Signature       string
	ClientIP        string
}

// ConfirmPaymentResponse reports the committed payment state
type ConfirmPaymentResponse struct {
	OrderID   int64
	PaymentID string
	Amount    decimal.Decimal
	Status    core.PaymentStatus
}

// RefundRequest represents a refund initiation request
type RefundRequest struct {
	RemotePaymentID string
	Amount          *decimal.Decimal
	Reason          string
}

// RefundResponse reports the committed refund state
type RefundResponse struct {
	RefundID  string
	PaymentID string
	Amount    decimal.Decimal
	Status    core.PaymentStatus
}
