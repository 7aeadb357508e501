package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusPaymentFailed   OrderStatus = "payment_failed"
	OrderStatusRefunded        OrderStatus = "refunded"
)

// Order represents an order domain entity. Payment-driven status changes
// go through the payment orchestrator only.
type Order struct {
	OrderID      int64
	CustomerID   int64
	Total        decimal.Decimal
	Status       OrderStatus
	DateAdded    time.Time
	DateModified time.Time
}

// IsPayable checks if the order can still accept a payment attempt
func (o *Order) IsPayable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusAwaitingPayment
}
