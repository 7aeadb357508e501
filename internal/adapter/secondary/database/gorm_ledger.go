package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopkart/payment-engine/internal/constant/model/db"
	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/output"
)

// GormOrderLedger is a secondary adapter that implements the
// OrderLedger output port over GORM/Postgres. Transactional reads take
// SELECT FOR UPDATE row locks so racing transitions serialize at the
// database.
type GormOrderLedger struct {
	gormDB *gorm.DB
}

// NewGormOrderLedger creates a new GORM order ledger
func NewGormOrderLedger(gormDB *gorm.DB) output.OrderLedger {
	return &GormOrderLedger{gormDB: gormDB}
}

// toCore converts db.PaymentInfo to core.PaymentRecord
func toCore(p *db.PaymentInfo) *core.PaymentRecord {
	return &core.PaymentRecord{
		OrderID:        p.OrderID,
		Provider:       p.PaymentProvider,
		PaymentOrderID: p.PaymentOrderID,
		PaymentID:      p.PaymentID,
		Status:         core.PaymentStatus(p.PaymentStatus),
		Amount:         p.Amount,
		Currency:       p.Currency,
		RefundID:       p.RefundID,
		RefundAmount:   p.RefundAmount,
		DateAdded:      p.DateAdded,
		DateModified:   p.DateModified,
	}
}

// fromCore converts core.PaymentRecord to db.PaymentInfo
func fromCore(r *core.PaymentRecord) *db.PaymentInfo {
	return &db.PaymentInfo{
		OrderID:         r.OrderID,
		PaymentProvider: r.Provider,
		PaymentOrderID:  r.PaymentOrderID,
		PaymentID:       r.PaymentID,
		PaymentStatus:   string(r.Status),
		Amount:          r.Amount,
		Currency:        r.Currency,
		RefundID:        r.RefundID,
		RefundAmount:    r.RefundAmount,
		DateAdded:       r.DateAdded,
		DateModified:    r.DateModified,
	}
}

func orderToCore(o *db.Order) *core.Order {
	return &core.Order{
		OrderID:      o.OrderID,
		CustomerID:   o.CustomerID,
		Total:        o.Total,
		Status:       core.OrderStatus(o.OrderStatus),
		DateAdded:    o.DateAdded,
		DateModified: o.DateModified,
	}
}

// WithTransaction runs fn inside one database transaction: commit on
// nil return, rollback on error or panic.
func (l *GormOrderLedger) WithTransaction(ctx context.Context, fn func(tx output.LedgerTx) error) error {
	return l.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{tx: tx})
	})
}

// GetOrder retrieves an order outside any transaction
func (l *GormOrderLedger) GetOrder(ctx context.Context, orderID int64) (*core.Order, error) {
	var order db.Order
	if err := l.gormDB.WithContext(ctx).First(&order, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return orderToCore(&order), nil
}

// GetPaymentRecord retrieves the payment record for an order outside
// any transaction. Returns nil, nil when no record exists yet.
func (l *GormOrderLedger) GetPaymentRecord(ctx context.Context, orderID int64) (*core.PaymentRecord, error) {
	var info db.PaymentInfo
	if err := l.gormDB.WithContext(ctx).First(&info, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	return toCore(&info), nil
}

// gormLedgerTx implements the LedgerTx port over one open transaction.
type gormLedgerTx struct {
	tx *gorm.DB
}

// GetOrderForUpdate loads and locks an order row
func (t *gormLedgerTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*core.Order, error) {
	var order db.Order
	if err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return orderToCore(&order), nil
}

// GetPaymentRecordForUpdate loads and locks the payment record for an
// order. Returns nil, nil when no record exists yet.
func (t *gormLedgerTx) GetPaymentRecordForUpdate(ctx context.Context, orderID int64) (*core.PaymentRecord, error) {
	var info db.PaymentInfo
	if err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&info, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock payment record: %w", err)
	}
	return toCore(&info), nil
}

// FindPaymentRecordByPaymentID loads and locks the payment record
// holding the given remote payment id
func (t *gormLedgerTx) FindPaymentRecordByPaymentID(ctx context.Context, remotePaymentID string) (*core.PaymentRecord, error) {
	var info db.PaymentInfo
	if err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&info, "payment_id = ?", remotePaymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to lock payment record: %w", err)
	}
	return toCore(&info), nil
}

// UpsertPaymentRecord writes the authoritative payment record for its
// order, creating it on first use
func (t *gormLedgerTx) UpsertPaymentRecord(ctx context.Context, record *core.PaymentRecord) error {
	info := fromCore(record)
	info.DateModified = time.Now()
	if err := t.tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"payment_provider", "payment_order_id", "payment_id",
				"payment_status", "amount", "currency",
				"refund_id", "refund_amount", "date_modified",
			}),
		}).
		Create(info).Error; err != nil {
		return fmt.Errorf("failed to upsert payment record: %w", err)
	}
	record.DateAdded = info.DateAdded
	record.DateModified = info.DateModified
	return nil
}

// SetOrderStatus updates the order status in lock-step with the
// payment record
func (t *gormLedgerTx) SetOrderStatus(ctx context.Context, orderID int64, status core.OrderStatus) error {
	result := t.tx.WithContext(ctx).Model(&db.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"order_status":  string(status),
			"date_modified": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return core.ErrOrderNotFound
	}
	return nil
}
