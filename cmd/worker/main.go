package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/adapter/secondary/messaging"
	"github.com/shopkart/payment-engine/internal/config"
	"github.com/shopkart/payment-engine/internal/core"
)

// The worker consumes committed payment lifecycle events and triggers
// order side effects (fulfillment kickoff, confirmation dispatch).
// Because the orchestrator publishes at most one event per transition,
// side effects run at most once per capture/failure/refund.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize secondary adapter: Messaging (concrete type for worker)
	msgClient, err := messaging.NewRabbitMQClientConcrete(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer msgClient.Close()

	// Start consuming events
	err = msgClient.ConsumePaymentEvents(func(event core.PaymentEvent) error {
		switch event.Type {
		case core.WebhookPaymentCaptured:
			logger.Info("dispatching order confirmation",
				zap.Int64("order_id", event.OrderID),
				zap.String("payment_id", event.PaymentID),
				zap.String("amount", event.Amount.String()))
		case core.WebhookPaymentFailed:
			logger.Info("dispatching payment failure notice",
				zap.Int64("order_id", event.OrderID),
				zap.String("payment_id", event.PaymentID))
		case core.WebhookRefundProcessed:
			logger.Info("dispatching refund confirmation",
				zap.Int64("order_id", event.OrderID),
				zap.String("refund_id", event.RefundID),
				zap.String("amount", event.Amount.String()))
		default:
			return messaging.ErrDropEvent
		}
		return nil
	})
	if err != nil {
		logger.Fatal("failed to start consuming events", zap.Error(err))
	}

	logger.Info("payment event worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
}
