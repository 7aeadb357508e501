package service

import (
	"context"
	"errors"
	"sync"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/output"
)

// Common test errors
var (
	ErrMockGateway = errors.New("mock gateway error")
	ErrMockLedger  = errors.New("mock ledger error")
)

// fakeLedger implements the OrderLedger port over in-memory maps. The
// mutex stands in for the database row locks: concurrent transitions
// serialize the way SELECT FOR UPDATE serializes them in production.
type fakeLedger struct {
	mu      sync.Mutex
	orders  map[int64]*core.Order
	records map[int64]*core.PaymentRecord
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:  make(map[int64]*core.Order),
		records: make(map[int64]*core.PaymentRecord),
	}
}

func copyOrder(o *core.Order) *core.Order {
	cp := *o
	return &cp
}

func copyRecord(r *core.PaymentRecord) *core.PaymentRecord {
	cp := *r
	if r.RefundID != nil {
		id := *r.RefundID
		cp.RefundID = &id
	}
	if r.RefundAmount != nil {
		amount := *r.RefundAmount
		cp.RefundAmount = &amount
	}
	return &cp
}

func (l *fakeLedger) WithTransaction(ctx context.Context, fn func(tx output.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Snapshot for rollback on error.
	ordersSnap := make(map[int64]*core.Order, len(l.orders))
	for id, o := range l.orders {
		ordersSnap[id] = copyOrder(o)
	}
	recordsSnap := make(map[int64]*core.PaymentRecord, len(l.records))
	for id, r := range l.records {
		recordsSnap[id] = copyRecord(r)
	}

	if err := fn(&fakeLedgerTx{ledger: l}); err != nil {
		l.orders = ordersSnap
		l.records = recordsSnap
		return err
	}
	return nil
}

func (l *fakeLedger) GetOrder(ctx context.Context, orderID int64) (*core.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return nil, core.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (l *fakeLedger) GetPaymentRecord(ctx context.Context, orderID int64) (*core.PaymentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[orderID]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

// order and record give tests direct access to committed state.
func (l *fakeLedger) order(orderID int64) *core.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyOrder(l.orders[orderID])
}

func (l *fakeLedger) record(orderID int64) *core.PaymentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[orderID]
	if !ok {
		return nil
	}
	return copyRecord(r)
}

type fakeLedgerTx struct {
	ledger *fakeLedger
}

func (t *fakeLedgerTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*core.Order, error) {
	order, ok := t.ledger.orders[orderID]
	if !ok {
		return nil, core.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (t *fakeLedgerTx) GetPaymentRecordForUpdate(ctx context.Context, orderID int64) (*core.PaymentRecord, error) {
	record, ok := t.ledger.records[orderID]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

func (t *fakeLedgerTx) FindPaymentRecordByPaymentID(ctx context.Context, remotePaymentID string) (*core.PaymentRecord, error) {
	for _, record := range t.ledger.records {
		if record.PaymentID == remotePaymentID {
			return copyRecord(record), nil
		}
	}
	return nil, core.ErrPaymentNotFound
}

func (t *fakeLedgerTx) UpsertPaymentRecord(ctx context.Context, record *core.PaymentRecord) error {
	t.ledger.records[record.OrderID] = copyRecord(record)
	return nil
}

func (t *fakeLedgerTx) SetOrderStatus(ctx context.Context, orderID int64, status core.OrderStatus) error {
	order, ok := t.ledger.orders[orderID]
	if !ok {
		return core.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

// fakeGateway implements the PaymentGateway port with settable
// behaviors and call counters.
type fakeGateway struct {
	mu sync.Mutex

	CreateOrderFunc func(req output.CreateRemoteOrderRequest) (*output.RemoteOrder, error)
	FetchFunc       func(remotePaymentID string) (*output.RemotePayment, error)
	RefundFunc      func(remotePaymentID string, req output.CreateRefundRequest) (*output.RemoteRefund, error)

	CreateOrderCalls int
	FetchCalls       int
	RefundCalls      int
}

func (g *fakeGateway) CreateRemoteOrder(ctx context.Context, req output.CreateRemoteOrderRequest) (*output.RemoteOrder, error) {
	g.mu.Lock()
	g.CreateOrderCalls++
	g.mu.Unlock()
	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(req)
	}
	return &output.RemoteOrder{
		RemoteOrderID: "order_remote_1",
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        "created",
	}, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, remotePaymentID string) (*output.RemotePayment, error) {
	g.mu.Lock()
	g.FetchCalls++
	g.mu.Unlock()
	if g.FetchFunc != nil {
		return g.FetchFunc(remotePaymentID)
	}
	return nil, core.ErrPaymentNotFound
}

func (g *fakeGateway) CreateRefund(ctx context.Context, remotePaymentID string, req output.CreateRefundRequest) (*output.RemoteRefund, error) {
	g.mu.Lock()
	g.RefundCalls++
	g.mu.Unlock()
	if g.RefundFunc != nil {
		return g.RefundFunc(remotePaymentID, req)
	}
	return nil, ErrMockGateway
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []core.PaymentEvent
}

func (p *fakePublisher) PublishPaymentEvent(event core.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []core.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.PaymentEvent, len(p.events))
	copy(out, p.events)
	return out
}
