package core

import "errors"

var (
	// ErrGatewayUnavailable indicates a transient network/5xx failure
	// talking to the payment gateway; safe to retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected indicates the gateway rejected the request
	// (validation error); never retried.
	ErrGatewayRejected = errors.New("payment gateway rejected request")

	// ErrSignatureInvalid indicates a failed HMAC verification.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrAmountMismatch indicates the gateway-reported amount does not
	// match the order total; the transition is aborted.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrPaymentNotCaptured indicates confirmation was attempted before
	// the gateway shows the payment as captured.
	ErrPaymentNotCaptured = errors.New("payment not captured at gateway")

	// ErrInvalidTransition indicates a transition from a terminal or
	// incompatible state.
	ErrInvalidTransition = errors.New("invalid payment state transition")

	// ErrOrderNotFound indicates the local order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPaymentNotFound indicates no payment record matches the given
	// identifier, locally or at the gateway.
	ErrPaymentNotFound = errors.New("payment not found")
)
