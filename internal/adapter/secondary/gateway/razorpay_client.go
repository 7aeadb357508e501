package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopkart/payment-engine/internal/core"
	"github.com/shopkart/payment-engine/internal/port/output"
)

// Client is a secondary adapter that implements the PaymentGateway
// output port against a Razorpay-style REST API. Amounts cross the wire
// in integer minor units (paise).
//
// Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff up to a fixed attempt ceiling and then surfaced
// as core.ErrGatewayUnavailable. Validation failures (other 4xx) map to
// core.ErrGatewayRejected and are never retried. Creation calls carry a
// caller-supplied receipt so gateway-side idempotency makes retries
// safe.
type Client struct {
	baseURL     string
	keyID       string
	keySecret   string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// Options configures the gateway client
type Options struct {
	BaseURL     string
	KeyID       string
	KeySecret   string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewClient creates a new gateway client
func NewClient(opts Options, logger *zap.Logger) output.PaymentGateway {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     opts.BaseURL,
		keyID:       opts.KeyID,
		keySecret:   opts.KeySecret,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		logger:      logger,
	}
}

type remoteOrderBody struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type remotePaymentBody struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type remoteRefundBody struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateRemoteOrder mints an order at the gateway
func (c *Client) CreateRemoteOrder(ctx context.Context, req output.CreateRemoteOrderRequest) (*output.RemoteOrder, error) {
	payload := map[string]any{
		"amount":   toPaise(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    req.Notes,
	}
	var body remoteOrderBody
	if err := c.do(ctx, http.MethodPost, "/v1/orders", payload, &body); err != nil {
		return nil, err
	}
	return &output.RemoteOrder{
		RemoteOrderID: body.ID,
		Amount:        fromPaise(body.Amount),
		Currency:      body.Currency,
		Status:        body.Status,
	}, nil
}

// FetchPayment reads the authoritative payment state from the gateway
func (c *Client) FetchPayment(ctx context.Context, remotePaymentID string) (*output.RemotePayment, error) {
	var body remotePaymentBody
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+remotePaymentID, nil, &body); err != nil {
		return nil, err
	}
	return &output.RemotePayment{
		RemotePaymentID: body.ID,
		RemoteOrderID:   body.OrderID,
		Status:          body.Status,
		Amount:          fromPaise(body.Amount),
		Currency:        body.Currency,
		Notes:           body.Notes,
	}, nil
}

// CreateRefund creates a refund for a captured payment. A nil amount
// requests a full refund.
func (c *Client) CreateRefund(ctx context.Context, remotePaymentID string, req output.CreateRefundRequest) (*output.RemoteRefund, error) {
	payload := map[string]any{}
	if req.Amount != nil {
		payload["amount"] = toPaise(*req.Amount)
	}
	if req.Receipt != "" {
		payload["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}
	var body remoteRefundBody
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+remotePaymentID+"/refund", payload, &body); err != nil {
		return nil, err
	}
	return &output.RemoteRefund{
		RefundID: body.ID,
		Status:   body.Status,
		Amount:   fromPaise(body.Amount),
	}, nil
}

// do performs one authenticated call with bounded retries on
// transient failures.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode gateway request: %w", err)
		}
	}

	delay := c.baseDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return core.ErrGatewayUnavailable
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := c.doOnce(ctx, method, path, reqBody, out)
		if err == nil {
			return nil
		}
		// Validation failures are permanent; retrying cannot help.
		if !retryable(err) {
			return err
		}
		lastErr = err
		c.logger.Warn("gateway call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, reqBody []byte, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and network errors are transient.
		return fmt.Errorf("%w: %v", core.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return core.ErrPaymentNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", core.ErrGatewayUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: gateway returned %d: %s", core.ErrGatewayRejected, resp.StatusCode, truncate(respBody, 200))
	}
}

func retryable(err error) bool {
	return errors.Is(err, core.ErrGatewayUnavailable)
}

func toPaise(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
