package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/core/service"
	"github.com/shopkart/payment-engine/internal/port/input"
)

// SignatureHeader carries the gateway's webhook HMAC.
const SignatureHeader = "X-Razorpay-Signature"

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	paymentService input.PaymentService
	refundService  input.RefundService
	verifier       *service.SignatureVerifier
	logger         *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	paymentService input.PaymentService,
	refundService input.RefundService,
	verifier *service.SignatureVerifier,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		refundService:  refundService,
		verifier:       verifier,
		logger:         logger,
	}
}

// CreateOrderRequest represents the HTTP request to start a checkout payment
type CreateOrderRequest struct {
	OrderID  int64             `json:"order_id"`
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrderResponse represents the HTTP response with the client token
type CreateOrderResponse struct {
	RazorpayOrderID string          `json:"razorpay_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Receipt         string          `json:"receipt"`
	Status          string          `json:"status"`
}

// VerifyPaymentRequest represents the client-side payment confirmation
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           int64  `json:"order_id"`
}

// VerifyPaymentResponse reports the committed payment state
type VerifyPaymentResponse struct {
	Status    string          `json:"status"`
	PaymentID string          `json:"payment_id"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// RefundRequest represents a refund initiation request
type RefundRequest struct {
	PaymentID string           `json:"payment_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// RefundResponse reports the committed refund state
type RefundResponse struct {
	RefundID  string          `json:"refund_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

// CreateOrder handles POST /payments/create-order
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.OrderID <= 0 || req.Amount.LessThanOrEqual(decimal.Zero) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "order_id and a positive amount are required"})
	}

	resp, err := h.paymentService.CreateOrder(c.Request().Context(), input.CreateOrderRequest{
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Notes:    req.Notes,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(http.StatusOK, CreateOrderResponse{
		RazorpayOrderID: resp.RemoteOrderID,
		Amount:          resp.Amount,
		Currency:        resp.Currency,
		Receipt:         resp.Receipt,
		Status:          string(resp.Status),
	})
}

// VerifyPayment handles POST /payments/verify-payment
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.paymentService.ConfirmPayment(c.Request().Context(), input.ConfirmPaymentRequest{
		OrderID:         req.OrderID,
		RemoteOrderID:   req.RazorpayOrderID,
		RemotePaymentID: req.RazorpayPaymentID,
		Signature:       req.RazorpaySignature,
		ClientIP:        c.RealIP(),
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(http.StatusOK, VerifyPaymentResponse{
		Status:    string(resp.Status),
		PaymentID: resp.PaymentID,
		OrderID:   resp.OrderID,
		Amount:    resp.Amount,
	})
}

// Webhook handles POST /payments/webhook. The handler verifies the
// signature over the exact raw body bytes; only a signature failure is
// rejected with a non-200 status. Processing errors are logged and
// acknowledged so the sender's retries do not amplify an already-logged
// problem.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"success": false})
	}

	if !h.verifier.VerifyWebhook(rawBody, c.Request().Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", zap.String("client_ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, map[string]any{"success": false})
	}

	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		h.logger.Warn("webhook body is not valid JSON", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"success": false})
	}

	if err := h.paymentService.ApplyWebhookEvent(c.Request().Context(), envelope.Event, rawBody); err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("event", envelope.Event),
			zap.Error(err))
		return c.JSON(http.StatusOK, map[string]any{"success": false})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Refund handles POST /payments/refund
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.PaymentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "payment_id is required"})
	}
	if req.Amount != nil && req.Amount.LessThanOrEqual(decimal.Zero) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
	}

	resp, err := h.refundService.Refund(c.Request().Context(), input.RefundRequest{
		RemotePaymentID: req.PaymentID,
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(http.StatusOK, RefundResponse{
		RefundID:  resp.RefundID,
		PaymentID: resp.PaymentID,
		Amount:    resp.Amount,
		Status:    string(resp.Status),
	})
}

// respondError maps core errors onto HTTP statuses. Security-class
// failures return a non-descriptive 4xx so the response carries no
// oracle; details live in the logs only.
func (h *PaymentHandler) respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, core.ErrOrderNotFound), errors.Is(err, core.ErrPaymentNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, core.ErrSignatureInvalid), errors.Is(err, core.ErrAmountMismatch):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "payment verification failed"})
	case errors.Is(err, core.ErrGatewayRejected):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "request rejected"})
	case errors.Is(err, core.ErrPaymentNotCaptured), errors.Is(err, core.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, map[string]string{"error": "payment state conflict"})
	case errors.Is(err, core.ErrGatewayUnavailable):
		h.logger.Error("gateway unavailable", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment service temporarily unavailable"})
	default:
		h.logger.Error("unhandled payment error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
