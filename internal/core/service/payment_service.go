package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/input"
	"github.com/shopkart/payment-engine/internal/port/output"
)

// ProviderName tags payment records with the gateway they belong to.
const ProviderName = "razorpay"

// PaymentOrchestrator implements the PaymentService input port. It is
// the only writer of order status for payment-driven reasons, and the
// single place where payment state transitions are decided.
//
// The client-confirmation path and the webhook path race for the same
// order; both funnel through the ledger's row locks, so whichever
// arrives first wins the transition and the loser observes the applied
// state and no-ops.
type PaymentOrchestrator struct {
	ledger    output.OrderLedger
	gateway   output.PaymentGateway
	verifier  *SignatureVerifier
	publisher output.EventPublisher
	currency  string
	logger    *zap.Logger
}

// NewPaymentOrchestrator creates a new payment orchestrator
func NewPaymentOrchestrator(
	ledger output.OrderLedger,
	gateway output.PaymentGateway,
	verifier *SignatureVerifier,
	publisher output.EventPublisher,
	defaultCurrency string,
	logger *zap.Logger,
) input.PaymentService {
	return &PaymentOrchestrator{
		ledger:    ledger,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		currency:  defaultCurrency,
		logger:    logger,
	}
}

// CreateOrder mints a remote gateway order and persists the pending
// payment record. No ledger transaction is held across the gateway
// round-trip: preconditions are checked in one transaction, the remote
// order is minted outside any transaction, and the result is persisted
// in a second transaction.
func (s *PaymentOrchestrator) CreateOrder(ctx context.Context, req input.CreateOrderRequest) (*input.CreateOrderResponse, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.currency
	}
	receipt := receiptForOrder(req.OrderID)

	// Phase 1: preconditions + idempotent re-entry check.
	var existing *core.PaymentRecord
	err := s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		order, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if !core.AmountsMatch(req.Amount, order.Total) {
			s.logger.Warn("create-order amount does not match order total",
				zap.Int64("order_id", req.OrderID),
				zap.String("requested", req.Amount.String()),
				zap.String("total", order.Total.String()))
			return core.ErrAmountMismatch
		}
		if !order.IsPayable() {
			return core.ErrInvalidTransition
		}
		record, err := tx.GetPaymentRecordForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if record != nil && record.Status == core.PaymentStatusCreated {
			existing = record
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Duplicate client retry of "start checkout": return the existing
	// remote order unchanged.
	if existing != nil {
		return &input.CreateOrderResponse{
			RemoteOrderID: existing.PaymentOrderID,
			Amount:        existing.Amount,
			Currency:      existing.Currency,
			Receipt:       receipt,
			Status:        existing.Status,
		}, nil
	}

	// Phase 2: mint the remote order. The receipt makes retried
	// creation calls idempotent at the gateway.
	notes := map[string]string{"order_id": strconv.FormatInt(req.OrderID, 10)}
	for k, v := range req.Notes {
		notes[k] = v
	}
	remote, err := s.gateway.CreateRemoteOrder(ctx, output.CreateRemoteOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create remote order: %w", err)
	}

	// Phase 3: persist the pending payment state. The record is
	// re-checked under lock: a racing caller may have created, and even
	// captured, a record while the gateway call was in flight, and that
	// record is never written over.
	err = s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		order, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		current, err := tx.GetPaymentRecordForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if current != nil {
			if current.Status == core.PaymentStatusCreated {
				existing = current
				return nil
			}
			s.logger.Warn("payment record advanced during remote order creation",
				zap.Int64("order_id", req.OrderID),
				zap.String("status", string(current.Status)))
			return core.ErrInvalidTransition
		}
		record := &core.PaymentRecord{
			OrderID:        order.OrderID,
			Provider:       ProviderName,
			PaymentOrderID: remote.RemoteOrderID,
			Status:         core.PaymentStatusCreated,
			Amount:         remote.Amount,
			Currency:       remote.Currency,
		}
		if err := tx.UpsertPaymentRecord(ctx, record); err != nil {
			return err
		}
		return tx.SetOrderStatus(ctx, order.OrderID, core.OrderStatusAwaitingPayment)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &input.CreateOrderResponse{
			RemoteOrderID: existing.PaymentOrderID,
			Amount:        existing.Amount,
			Currency:      existing.Currency,
			Receipt:       receipt,
			Status:        existing.Status,
		}, nil
	}

	return &input.CreateOrderResponse{
		RemoteOrderID: remote.RemoteOrderID,
		Amount:        remote.Amount,
		Currency:      remote.Currency,
		Receipt:       receipt,
		Status:        core.PaymentStatusCreated,
	}, nil
}

// ConfirmPayment verifies the client-submitted confirmation, fetches
// the authoritative payment state from the gateway, and commits the
// captured transition. Replays with an already-captured payment id are
// a no-op success.
func (s *PaymentOrchestrator) ConfirmPayment(ctx context.Context, req input.ConfirmPaymentRequest) (*input.ConfirmPaymentResponse, error) {
	if !s.verifier.VerifyClientConfirmation(req.RemoteOrderID, req.RemotePaymentID, req.Signature) {
		s.logger.Warn("payment confirmation signature rejected",
			zap.Int64("order_id", req.OrderID),
			zap.String("remote_payment_id", req.RemotePaymentID),
			zap.String("client_ip", req.ClientIP))
		return nil, core.ErrSignatureInvalid
	}

	remote, err := s.gateway.FetchPayment(ctx, req.RemotePaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}
	if remote.Status != output.RemotePaymentStatusCaptured {
		return nil, core.ErrPaymentNotCaptured
	}

	var resp *input.ConfirmPaymentResponse
	var event *core.PaymentEvent
	err = s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		order, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		record, err := tx.GetPaymentRecordForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if record == nil {
			return core.ErrPaymentNotFound
		}
		if record.PaymentOrderID != "" && record.PaymentOrderID != req.RemoteOrderID {
			s.logger.Warn("confirmation remote order id does not match payment record",
				zap.Int64("order_id", req.OrderID),
				zap.String("client_ip", req.ClientIP))
			return core.ErrInvalidTransition
		}

		// Fraud-relevant check: the gateway's captured amount must match
		// the order total, not the client-requested amount.
		if !core.AmountsMatch(remote.Amount, order.Total) {
			s.logger.Warn("captured amount does not match order total",
				zap.Int64("order_id", req.OrderID),
				zap.String("captured", remote.Amount.String()),
				zap.String("total", order.Total.String()),
				zap.String("client_ip", req.ClientIP))
			return core.ErrAmountMismatch
		}

		applied, err := s.applyCapture(ctx, tx, order, record, req.RemotePaymentID, remote.Amount)
		if err != nil {
			return err
		}
		resp = &input.ConfirmPaymentResponse{
			OrderID:   order.OrderID,
			PaymentID: record.PaymentID,
			Amount:    record.Amount,
			Status:    record.Status,
		}
		if applied {
			event = s.capturedEvent(record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(event)
	return resp, nil
}

// applyCapture performs the idempotent transition to captured. The
// record is mutated in place so callers can read the committed state.
func (s *PaymentOrchestrator) applyCapture(ctx context.Context, tx output.LedgerTx, order *core.Order, record *core.PaymentRecord, remotePaymentID string, amount decimal.Decimal) (bool, error) {
	// Duplicate delivery of an already-applied capture: no-op, no side
	// effects beyond the first application.
	if record.Status == core.PaymentStatusCaptured && record.PaymentID == remotePaymentID {
		return false, nil
	}
	if !record.Status.CanTransitionTo(core.PaymentStatusCaptured) {
		s.logger.Error("capture attempted from incompatible state",
			zap.Int64("order_id", record.OrderID),
			zap.String("status", string(record.Status)),
			zap.String("remote_payment_id", remotePaymentID))
		return false, core.ErrInvalidTransition
	}

	record.PaymentID = remotePaymentID
	record.Status = core.PaymentStatusCaptured
	record.Amount = amount
	if err := tx.UpsertPaymentRecord(ctx, record); err != nil {
		return false, err
	}
	if err := tx.SetOrderStatus(ctx, order.OrderID, core.OrderStatusPaid); err != nil {
		return false, err
	}
	order.Status = core.OrderStatusPaid
	return true, nil
}

// ApplyWebhookEvent applies one signature-verified gateway webhook. The
// event type is dispatched over a closed set; unknown types and events
// whose order cannot be resolved are logged and acknowledged, since
// malformed metadata cannot self-heal via sender retries.
func (s *PaymentOrchestrator) ApplyWebhookEvent(ctx context.Context, eventType string, rawPayload []byte) error {
	kind, ok := core.ParseWebhookEventType(eventType)
	if !ok {
		s.logger.Info("ignoring unknown webhook event type", zap.String("event", eventType))
		return nil
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		s.logger.Warn("failed to decode webhook payload", zap.String("event", eventType), zap.Error(err))
		return nil
	}

	switch kind {
	case core.WebhookPaymentCaptured:
		return s.applyWebhookCapture(ctx, payload.Payload.Payment.Entity)
	case core.WebhookPaymentFailed:
		return s.applyWebhookFailure(ctx, payload.Payload.Payment.Entity)
	case core.WebhookRefundProcessed:
		return s.applyWebhookRefund(ctx, payload.Payload.Refund.Entity)
	}
	return nil
}

func (s *PaymentOrchestrator) applyWebhookCapture(ctx context.Context, entity webhookPaymentEntity) error {
	orderID, ok := orderIDFromNotes(entity.Notes)
	if !ok {
		s.logger.Warn("webhook payment has no resolvable order id",
			zap.String("remote_payment_id", entity.ID))
		return nil
	}

	amount := paiseToDecimal(entity.Amount)
	var event *core.PaymentEvent
	err := s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		record, err := tx.GetPaymentRecordForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if record == nil {
			return core.ErrPaymentNotFound
		}
		if !core.AmountsMatch(amount, order.Total) {
			s.logger.Warn("webhook captured amount does not match order total",
				zap.Int64("order_id", orderID),
				zap.String("captured", amount.String()),
				zap.String("total", order.Total.String()))
			return core.ErrAmountMismatch
		}
		applied, err := s.applyCapture(ctx, tx, order, record, entity.ID, amount)
		if err != nil {
			return err
		}
		if applied {
			event = s.capturedEvent(record)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(event)
	return nil
}

func (s *PaymentOrchestrator) applyWebhookFailure(ctx context.Context, entity webhookPaymentEntity) error {
	orderID, ok := orderIDFromNotes(entity.Notes)
	if !ok {
		s.logger.Warn("webhook payment has no resolvable order id",
			zap.String("remote_payment_id", entity.ID))
		return nil
	}

	var event *core.PaymentEvent
	err := s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		record, err := tx.GetPaymentRecordForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if record == nil {
			return core.ErrPaymentNotFound
		}
		// Replay of an already-applied failure: no-op.
		if record.Status == core.PaymentStatusFailed {
			return nil
		}
		if !record.Status.CanTransitionTo(core.PaymentStatusFailed) {
			s.logger.Error("failure webhook for payment in incompatible state",
				zap.Int64("order_id", orderID),
				zap.String("status", string(record.Status)))
			return core.ErrInvalidTransition
		}

		record.Status = core.PaymentStatusFailed
		if err := tx.UpsertPaymentRecord(ctx, record); err != nil {
			return err
		}
		if err := tx.SetOrderStatus(ctx, order.OrderID, core.OrderStatusPaymentFailed); err != nil {
			return err
		}
		event = &core.PaymentEvent{
			EventID:    uuid.NewString(),
			Type:       core.WebhookPaymentFailed,
			OrderID:    record.OrderID,
			PaymentID:  entity.ID,
			Amount:     record.Amount,
			Currency:   record.Currency,
			OccurredAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(event)
	return nil
}

func (s *PaymentOrchestrator) applyWebhookRefund(ctx context.Context, entity webhookRefundEntity) error {
	if entity.PaymentID == "" {
		s.logger.Warn("refund webhook missing payment id", zap.String("refund_id", entity.ID))
		return nil
	}

	amount := paiseToDecimal(entity.Amount)
	var event *core.PaymentEvent
	err := s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		// The record is resolved from the remote payment id binding, not
		// from any caller-supplied order id.
		record, err := tx.FindPaymentRecordByPaymentID(ctx, entity.PaymentID)
		if err != nil {
			return err
		}
		applied, err := applyRefundTransition(ctx, tx, record, entity.ID, amount, s.logger)
		if err != nil {
			return err
		}
		if applied {
			event = &core.PaymentEvent{
				EventID:    uuid.NewString(),
				Type:       core.WebhookRefundProcessed,
				OrderID:    record.OrderID,
				PaymentID:  record.PaymentID,
				RefundID:   entity.ID,
				Amount:     amount,
				Currency:   record.Currency,
				OccurredAt: time.Now(),
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(event)
	return nil
}

// applyRefundTransition records a processed refund on the payment
// record, idempotent by refund id. It is shared by the synchronous
// refund path and the refund.processed webhook so both reconcile
// identically: partial refunds accumulate on the captured record, and
// once the cumulative amount reaches the captured amount the record
// transitions to refunded and the order follows.
func applyRefundTransition(ctx context.Context, tx output.LedgerTx, record *core.PaymentRecord, refundID string, amount decimal.Decimal, logger *zap.Logger) (bool, error) {
	// Replay of an already-recorded refund: no-op.
	if record.RefundID != nil && *record.RefundID == refundID {
		return false, nil
	}
	if record.Status != core.PaymentStatusCaptured {
		logger.Error("refund recorded against payment in incompatible state",
			zap.Int64("order_id", record.OrderID),
			zap.String("status", string(record.Status)),
			zap.String("refund_id", refundID))
		return false, core.ErrInvalidTransition
	}

	refunded := record.RefundedTotal().Add(amount)
	record.RefundID = &refundID
	record.RefundAmount = &refunded
	if refunded.GreaterThanOrEqual(record.Amount) {
		record.Status = core.PaymentStatusRefunded
	}
	if err := tx.UpsertPaymentRecord(ctx, record); err != nil {
		return false, err
	}
	if record.Status == core.PaymentStatusRefunded {
		if err := tx.SetOrderStatus(ctx, record.OrderID, core.OrderStatusRefunded); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *PaymentOrchestrator) capturedEvent(record *core.PaymentRecord) *core.PaymentEvent {
	return &core.PaymentEvent{
		EventID:    uuid.NewString(),
		Type:       core.WebhookPaymentCaptured,
		OrderID:    record.OrderID,
		PaymentID:  record.PaymentID,
		Amount:     record.Amount,
		Currency:   record.Currency,
		OccurredAt: time.Now(),
	}
}

// publish emits a post-transition event. Publishing failures are logged
// but never fail the committed transition.
func (s *PaymentOrchestrator) publish(event *core.PaymentEvent) {
	if event == nil || s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPaymentEvent(*event); err != nil {
		s.logger.Error("failed to publish payment event",
			zap.String("type", string(event.Type)),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}
}

func receiptForOrder(orderID int64) string {
	return "order_" + strconv.FormatInt(orderID, 10)
}

func orderIDFromNotes(notes map[string]string) (int64, bool) {
	raw, ok := notes["order_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// paiseToDecimal converts the gateway's integer minor units to an exact
// decimal amount.
func paiseToDecimal(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// webhookPayload mirrors the gateway's webhook envelope. Only the
// fields the reconciliation logic needs are decoded.
type webhookPayload struct {
	Payload struct {
		Payment struct {
			Entity webhookPaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity webhookRefundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type webhookPaymentEntity struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type webhookRefundEntity struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Notes     map[string]string `json:"notes"`
}
