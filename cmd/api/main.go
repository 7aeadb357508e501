package main

import (
	"fmt"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/shopkart/payment-engine/internal/adapter/primary/http"
	"github.com/shopkart/payment-engine/internal/adapter/secondary/database"
	"github.com/shopkart/payment-engine/internal/adapter/secondary/gateway"
	"github.com/shopkart/payment-engine/internal/adapter/secondary/messaging"
	"github.com/shopkart/payment-engine/internal/config"
	"github.com/shopkart/payment-engine/internal/constant/model/db"
	"github.com/shopkart/payment-engine/internal/core/service"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize secondary adapter: Database
	dbConn, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbConn.Close()

	// Initialize secondary adapters: Ledger, Gateway and Messaging
	ledger := database.NewGormOrderLedger(dbConn.DB)
	gatewayClient := gateway.NewClient(gateway.Options{
		BaseURL:     cfg.GatewayBaseURL,
		KeyID:       cfg.GatewayKeyID,
		KeySecret:   cfg.GatewayKeySecret,
		Timeout:     cfg.GatewayTimeout,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}, logger)
	publisher, err := messaging.NewRabbitMQClient(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer publisher.Close()

	// Initialize core services
	verifier := service.NewSignatureVerifier(cfg.GatewayKeySecret, cfg.WebhookSecret, cfg.IsProduction(), logger)
	paymentService := service.NewPaymentOrchestrator(ledger, gatewayClient, verifier, publisher, cfg.CurrencyDefault, logger)
	refundService := service.NewRefundCoordinator(ledger, gatewayClient, publisher, logger)

	// Initialize primary adapter: HTTP handler
	paymentHandler := handlers.NewPaymentHandler(paymentService, refundService, verifier, logger)

	// Initialize Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	api := e.Group("/api/v1/payments")
	api.POST("/create-order", paymentHandler.CreateOrder)
	api.POST("/verify-payment", paymentHandler.VerifyPayment)
	api.POST("/webhook", paymentHandler.Webhook)
	api.POST("/refund", paymentHandler.Refund)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("starting API server", zap.String("addr", addr))
	if err := e.Start(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
