package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/input"
	"github.com/shopkart/payment-engine/internal/port/output"
)

type refundFixture struct {
	ledger    *fakeLedger
	gateway   *fakeGateway
	publisher *fakePublisher
	service   input.RefundService

	receipts []string
}

func newRefundCoordinator(t *testing.T) *refundFixture {
	t.Helper()
	ledger := newFakeLedger()
	gateway := &fakeGateway{}
	publisher := &fakePublisher{}
	svc := NewRefundCoordinator(ledger, gateway, publisher, zap.NewNop())
	return &refundFixture{
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		service:   svc,
	}
}

func (f *refundFixture) seedCaptured(orderID int64, paymentID, amount string) {
	f.ledger.orders[orderID] = &core.Order{
		OrderID:    orderID,
		CustomerID: 7,
		Total:      dec(amount),
		Status:     core.OrderStatusPaid,
	}
	f.ledger.records[orderID] = &core.PaymentRecord{
		OrderID:        orderID,
		Provider:       ProviderName,
		PaymentOrderID: "order_remote_1",
		PaymentID:      paymentID,
		Status:         core.PaymentStatusCaptured,
		Amount:         dec(amount),
		Currency:       "INR",
	}
}

// refundSucceeds makes the fake gateway mint sequential refund ids for
// the full remaining amount unless a specific amount was requested,
// recording the receipt sent with each attempt.
func (f *refundFixture) refundSucceeds(fullAmount string) {
	seq := 0
	f.gateway.RefundFunc = func(remotePaymentID string, req output.CreateRefundRequest) (*output.RemoteRefund, error) {
		seq++
		f.receipts = append(f.receipts, req.Receipt)
		amount := dec(fullAmount)
		if req.Amount != nil {
			amount = *req.Amount
		}
		return &output.RemoteRefund{
			RefundID: fmt.Sprintf("rfnd_%d", seq),
			Amount:   amount,
			Status:   "processed",
		}, nil
	}
}

func TestRefundCoordinator_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("full refund transitions payment and order to refunded", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		f.refundSucceeds("250.00")

		resp, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9"})
		if err != nil {
			t.Fatalf("Refund failed: %v", err)
		}
		if resp.Status != core.PaymentStatusRefunded {
			t.Errorf("expected refunded status, got %s", resp.Status)
		}
		if resp.RefundID != "rfnd_1" {
			t.Errorf("unexpected refund id %q", resp.RefundID)
		}

		record := f.ledger.record(44)
		if record.Status != core.PaymentStatusRefunded {
			t.Errorf("expected refunded record, got %s", record.Status)
		}
		if got := f.ledger.order(44).Status; got != core.OrderStatusRefunded {
			t.Errorf("expected order refunded, got %s", got)
		}
		if events := f.publisher.published(); len(events) != 1 || events[0].Type != core.WebhookRefundProcessed {
			t.Errorf("expected single refund event, got %+v", events)
		}
		if len(f.receipts) != 1 || f.receipts[0] != "refund_pay_9_0" {
			t.Errorf("expected gateway call with receipt refund_pay_9_0, got %v", f.receipts)
		}
	})

	t.Run("second refund after full refund is rejected", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		f.refundSucceeds("250.00")

		if _, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9"}); err != nil {
			t.Fatalf("first refund failed: %v", err)
		}
		_, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9"})
		if !errors.Is(err, core.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if f.gateway.RefundCalls != 1 {
			t.Errorf("expected one gateway refund call, got %d", f.gateway.RefundCalls)
		}
	})

	t.Run("refund on non-captured payment never reaches the gateway", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		f.ledger.records[44].Status = core.PaymentStatusCreated

		_, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9"})
		if !errors.Is(err, core.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if f.gateway.RefundCalls != 0 {
			t.Errorf("expected no gateway refund call, got %d", f.gateway.RefundCalls)
		}
	})

	t.Run("unknown payment id is rejected", func(t *testing.T) {
		f := newRefundCoordinator(t)
		_, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_missing"})
		if !errors.Is(err, core.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("over-refund request is rejected before the gateway call", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		over := dec("300.00")

		_, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9", Amount: &over})
		if !errors.Is(err, core.ErrGatewayRejected) {
			t.Fatalf("expected ErrGatewayRejected, got %v", err)
		}
		if f.gateway.RefundCalls != 0 {
			t.Errorf("expected no gateway refund call, got %d", f.gateway.RefundCalls)
		}
	})

	t.Run("gateway failure leaves the record untouched", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		f.gateway.RefundFunc = func(remotePaymentID string, req output.CreateRefundRequest) (*output.RemoteRefund, error) {
			return nil, core.ErrGatewayUnavailable
		}

		_, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9"})
		if !errors.Is(err, core.ErrGatewayUnavailable) {
			t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
		}
		record := f.ledger.record(44)
		if record.Status != core.PaymentStatusCaptured {
			t.Errorf("expected record still captured, got %s", record.Status)
		}
		if record.RefundID != nil || record.RefundAmount != nil {
			t.Errorf("expected no refund bookkeeping, got %+v", record)
		}
		if len(f.publisher.published()) != 0 {
			t.Error("expected no refund event")
		}
	})

	t.Run("partial refunds accumulate until the captured amount is exhausted", func(t *testing.T) {
		f := newRefundCoordinator(t)
		f.seedCaptured(44, "pay_9", "250.00")
		f.refundSucceeds("250.00")

		first := dec("100.00")
		resp, err := f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9", Amount: &first})
		if err != nil {
			t.Fatalf("first partial refund failed: %v", err)
		}
		if resp.Status != core.PaymentStatusCaptured {
			t.Errorf("expected record still captured after partial refund, got %s", resp.Status)
		}
		record := f.ledger.record(44)
		if record.RefundAmount == nil || !record.RefundAmount.Equal(dec("100.00")) {
			t.Fatalf("expected refunded total 100.00, got %+v", record.RefundAmount)
		}

		second := dec("150.00")
		resp, err = f.service.Refund(ctx, input.RefundRequest{RemotePaymentID: "pay_9", Amount: &second})
		if err != nil {
			t.Fatalf("second partial refund failed: %v", err)
		}
		if resp.Status != core.PaymentStatusRefunded {
			t.Errorf("expected refunded after exhausting captured amount, got %s", resp.Status)
		}
		if got := f.ledger.order(44).Status; got != core.OrderStatusRefunded {
			t.Errorf("expected order refunded, got %s", got)
		}
		if events := f.publisher.published(); len(events) != 2 {
			t.Errorf("expected two refund events, got %d", len(events))
		}
		// Each logical refund gets its own receipt; a transport retry of
		// either attempt would resend the same one.
		want := []string{"refund_pay_9_0", "refund_pay_9_10000"}
		if len(f.receipts) != 2 || f.receipts[0] != want[0] || f.receipts[1] != want[1] {
			t.Errorf("expected receipts %v, got %v", want, f.receipts)
		}
	})
}
