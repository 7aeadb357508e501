package db

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order mirrors the legacy orders table
type Order struct {
	OrderID      int64           `gorm:"column:order_id;primaryKey" json:"order_id"`
	CustomerID   int64           `gorm:"column:customer_id;not null;index" json:"customer_id"`
	Total        decimal.Decimal `gorm:"column:total;type:decimal(15,2);not null" json:"total"`
	OrderStatus  string          `gorm:"column:order_status;type:varchar(32);not null" json:"order_status"`
	DateAdded    time.Time       `gorm:"column:date_added;not null;default:CURRENT_TIMESTAMP" json:"date_added"`
	DateModified time.Time       `gorm:"column:date_modified;not null;default:CURRENT_TIMESTAMP" json:"date_modified"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (o *Order) BeforeUpdate(tx *gorm.DB) error {
	o.DateModified = time.Now()
	return nil
}

// PaymentInfo mirrors the legacy payment_info table: one authoritative
// row per order holding the current known payment state with the
// gateway. Rows are never deleted.
type PaymentInfo struct {
	OrderID         int64            `gorm:"column:order_id;primaryKey" json:"order_id"`
	PaymentProvider string           `gorm:"column:payment_provider;type:varchar(32);not null" json:"payment_provider"`
	PaymentOrderID  string           `gorm:"column:payment_order_id;type:varchar(64);not null;index" json:"payment_order_id"`
	PaymentID       string           `gorm:"column:payment_id;type:varchar(64);index" json:"payment_id"`
	PaymentStatus   string           `gorm:"column:payment_status;type:varchar(32);not null" json:"payment_status"`
	Amount          decimal.Decimal  `gorm:"column:amount;type:decimal(15,2);not null" json:"amount"`
	Currency        string           `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	RefundID        *string          `gorm:"column:refund_id;type:varchar(64)" json:"refund_id,omitempty"`
	RefundAmount    *decimal.Decimal `gorm:"column:refund_amount;type:decimal(15,2)" json:"refund_amount,omitempty"`
	DateAdded       time.Time        `gorm:"column:date_added;not null;default:CURRENT_TIMESTAMP" json:"date_added"`
	DateModified    time.Time        `gorm:"column:date_modified;not null;default:CURRENT_TIMESTAMP" json:"date_modified"`
}

// TableName specifies the table name for GORM
func (PaymentInfo) TableName() string {
	return "payment_info"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (p *PaymentInfo) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.DateAdded.IsZero() {
		p.DateAdded = now
	}
	if p.DateModified.IsZero() {
		p.DateModified = now
	}
	return nil
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (p *PaymentInfo) BeforeUpdate(tx *gorm.DB) error {
	p.DateModified = time.Now()
	return nil
}
