package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/input"
	"github.com/shopkart/payment-engine/internal/port/output"
)

// RefundCoordinator implements the RefundService input port. A refund
// is a specialized transition of the payment state machine: full
// refunds move captured -> refunded, partial refunds accumulate on the
// captured record until the captured amount is exhausted.
type RefundCoordinator struct {
	ledger    output.OrderLedger
	gateway   output.PaymentGateway
	publisher output.EventPublisher
	logger    *zap.Logger
}

// NewRefundCoordinator creates a new refund coordinator
func NewRefundCoordinator(
	ledger output.OrderLedger,
	gateway output.PaymentGateway,
	publisher output.EventPublisher,
	logger *zap.Logger,
) input.RefundService {
	return &RefundCoordinator{
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
	}
}

// Refund initiates a refund with the gateway and reconciles the local
// payment record. Preconditions are checked in one transaction, the
// gateway call happens outside any transaction, and the result is
// committed in a second transaction. Gateway failure surfaces unchanged
// with no local state mutated.
func (s *RefundCoordinator) Refund(ctx context.Context, req input.RefundRequest) (*input.RefundResponse, error) {
	// Phase 1: the underlying record must be captured with enough
	// remaining amount, otherwise no gateway call is made at all.
	var remaining decimal.Decimal
	var receipt string
	err := s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		record, err := tx.FindPaymentRecordByPaymentID(ctx, req.RemotePaymentID)
		if err != nil {
			return err
		}
		if record.Status != core.PaymentStatusCaptured {
			return core.ErrInvalidTransition
		}
		remaining = record.Amount.Sub(record.RefundedTotal())
		if req.Amount != nil && req.Amount.GreaterThan(remaining) {
			return core.ErrGatewayRejected
		}
		receipt = refundReceipt(req.RemotePaymentID, record.RefundedTotal())
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Phase 2: create the refund at the gateway. The receipt makes a
	// retried POST dedupe gateway-side instead of minting a second
	// refund.
	notes := map[string]string{}
	if req.Reason != "" {
		notes["reason"] = req.Reason
	}
	remote, err := s.gateway.CreateRefund(ctx, req.RemotePaymentID, output.CreateRefundRequest{
		Amount:  req.Amount,
		Receipt: receipt,
		Notes:   notes,
	})
	if err != nil {
		return nil, err
	}

	// Phase 3: commit the refund against the record. Re-read under lock
	// because a refund webhook may have landed in the meantime; the
	// refund id keeps the two paths idempotent with each other.
	var resp *input.RefundResponse
	var event *core.PaymentEvent
	err = s.ledger.WithTransaction(ctx, func(tx output.LedgerTx) error {
		record, err := tx.FindPaymentRecordByPaymentID(ctx, req.RemotePaymentID)
		if err != nil {
			return err
		}
		applied, err := applyRefundTransition(ctx, tx, record, remote.RefundID, remote.Amount, s.logger)
		if err != nil {
			return err
		}
		resp = &input.RefundResponse{
			RefundID:  remote.RefundID,
			PaymentID: record.PaymentID,
			Amount:    remote.Amount,
			Status:    record.Status,
		}
		if applied {
			event = &core.PaymentEvent{
				EventID:    uuid.NewString(),
				Type:       core.WebhookRefundProcessed,
				OrderID:    record.OrderID,
				PaymentID:  record.PaymentID,
				RefundID:   remote.RefundID,
				Amount:     remote.Amount,
				Currency:   record.Currency,
				OccurredAt: time.Now(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if event != nil && s.publisher != nil {
		if pubErr := s.publisher.PublishPaymentEvent(*event); pubErr != nil {
			s.logger.Error("failed to publish refund event",
				zap.String("refund_id", event.RefundID),
				zap.Int64("order_id", event.OrderID),
				zap.Error(pubErr))
		}
	}
	return resp, nil
}

// refundReceipt identifies one logical refund attempt: stable across
// transport retries of the same attempt, distinct once an earlier
// refund has advanced the cumulative refunded total.
func refundReceipt(remotePaymentID string, alreadyRefunded decimal.Decimal) string {
	return fmt.Sprintf("refund_%s_%d", remotePaymentID, alreadyRefunded.Shift(2).Round(0).IntPart())
}

