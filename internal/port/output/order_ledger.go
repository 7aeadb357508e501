package output

import (
	"context"

	"github.com/shopkart/payment-engine/internal/core"
)

// LedgerTx is the view of the order ledger inside one transaction.
// Reads take row locks so that racing transitions serialize.
type LedgerTx interface {
	// GetOrderForUpdate loads and locks an order row.
	GetOrderForUpdate(ctx context.Context, orderID int64) (*core.Order, error)

	// GetPaymentRecordForUpdate loads and locks the payment record for
	// an order. Returns nil, nil when no record exists yet.
	GetPaymentRecordForUpdate(ctx context.Context, orderID int64) (*core.PaymentRecord, error)

	// FindPaymentRecordByPaymentID loads and locks the payment record
	// holding the given remote payment id.
	FindPaymentRecordByPaymentID(ctx context.Context, remotePaymentID string) (*core.PaymentRecord, error)

	// UpsertPaymentRecord writes the authoritative payment record for
	// its order, creating it on first use.
	UpsertPaymentRecord(ctx context.Context, record *core.PaymentRecord) error

	// SetOrderStatus updates the order status in lock-step with the
	// payment record.
	SetOrderStatus(ctx context.Context, orderID int64, status core.OrderStatus) error
}

// OrderLedger is an output port (secondary port) over the order and
// payment-info records. It is the sole mutation gateway for both; all
// multi-row effects of one transition happen inside one WithTransaction
// call.
type OrderLedger interface {
	// WithTransaction runs fn inside a database transaction: commit on
	// nil return, rollback on error or panic.
	WithTransaction(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetOrder reads an order outside any transaction.
	GetOrder(ctx context.Context, orderID int64) (*core.Order, error)

	// GetPaymentRecord reads the payment record for an order outside
	// any transaction. Returns nil, nil when no record exists.
	GetPaymentRecord(ctx context.Context, orderID int64) (*core.PaymentRecord, error)
}
