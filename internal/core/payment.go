package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment record
type PaymentStatus string

const (
	PaymentStatusCreated              PaymentStatus = "created"
	PaymentStatusAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentStatusCaptured             PaymentStatus = "captured"
	PaymentStatusFailed               PaymentStatus = "failed"
	PaymentStatusRefunded             PaymentStatus = "refunded"
)

// AmountEpsilon is the tolerance for comparing a gateway-reported amount
// against the order total: one minor currency unit.
var AmountEpsilon = decimal.New(1, -2)

// AmountsMatch reports whether two amounts agree within AmountEpsilon.
func AmountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(AmountEpsilon)
}

// PaymentRecord represents the current known payment state with the
// gateway for one order. Records are never deleted; transitions update
// the single authoritative row inside a ledger transaction.
type PaymentRecord struct {
	OrderID        int64
	Provider       string
	PaymentOrderID string // remote order id, assigned at creation
	PaymentID      string // remote payment id, set once on capture
	Status         PaymentStatus
	Amount         decimal.Decimal
	Currency       string
	RefundID       *string
	RefundAmount   *decimal.Decimal
	DateAdded      time.Time
	DateModified   time.Time
}

// IsTerminal checks if the payment is in a terminal state
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// CanTransitionTo reports whether the state machine permits moving from
// s to target. Terminal states only move forward captured -> refunded.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusCreated:
		return target == PaymentStatusAwaitingConfirmation ||
			target == PaymentStatusCaptured ||
			target == PaymentStatusFailed
	case PaymentStatusAwaitingConfirmation:
		return target == PaymentStatusCaptured || target == PaymentStatusFailed
	case PaymentStatusCaptured:
		return target == PaymentStatusRefunded
	default:
		return false
	}
}

// RefundedTotal returns the cumulative amount already refunded.
func (r *PaymentRecord) RefundedTotal() decimal.Decimal {
	if r.RefundAmount == nil {
		return decimal.Zero
	}
	return *r.RefundAmount
}
