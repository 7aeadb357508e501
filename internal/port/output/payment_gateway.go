package output

import (
	"context"

	"github.com/shopspring/decimal"
)

// CreateRemoteOrderRequest asks the gateway to mint a remote order.
// Receipt is derived from the local order id so gateway-side
// idempotency makes retried creation calls safe.
type CreateRemoteOrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// RemoteOrder is the gateway's view of a minted order.
type RemoteOrder struct {
	RemoteOrderID string
	Amount        decimal.Decimal
	Currency      string
	Status        string
}

// RemotePayment is the gateway's authoritative view of a payment.
type RemotePayment struct {
	RemotePaymentID string
	RemoteOrderID   string
	Status          string
	Amount          decimal.Decimal
	Currency        string
	Notes           map[string]string
}

// CreateRefundRequest asks the gateway to refund a captured payment.
// A nil Amount requests a full refund. Receipt identifies the logical
// refund attempt so a retried POST dedupes at the gateway instead of
// minting a second refund.
type CreateRefundRequest struct {
	Amount  *decimal.Decimal
	Receipt string
	Notes   map[string]string
}

// RemoteRefund is the gateway's view of a created refund.
type RemoteRefund struct {
	RefundID string
	Status   string
	Amount   decimal.Decimal
}

// RemotePaymentStatusCaptured is the gateway status for charged funds.
const RemotePaymentStatusCaptured = "captured"

// PaymentGateway is an output port (secondary port) to the external
// payment gateway. Implementations retry transient failures internally
// up to a fixed ceiling and surface core.ErrGatewayUnavailable after.
type PaymentGateway interface {
	CreateRemoteOrder(ctx context.Context, req CreateRemoteOrderRequest) (*RemoteOrder, error)
	FetchPayment(ctx context.Context, remotePaymentID string) (*RemotePayment, error)
	CreateRefund(ctx context.Context, remotePaymentID string, req CreateRefundRequest) (*RemoteRefund, error)
}
