package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"go.uber.org/zap"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignatureVerifier_VerifyClientConfirmation(t *testing.T) {
	verifier := NewSignatureVerifier("api-secret", "webhook-secret", true, zap.NewNop())

	valid := sign("api-secret", []byte("order_abc|pay_123"))

	t.Run("valid signature accepted", func(t *testing.T) {
		if !verifier.VerifyClientConfirmation("order_abc", "pay_123", valid) {
			t.Error("expected valid signature to verify")
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		if verifier.VerifyClientConfirmation("order_abc", "pay_123", sign("api-secret", []byte("order_abc|pay_999"))) {
			t.Error("expected signature over different payment id to fail")
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		if verifier.VerifyClientConfirmation("order_abc", "pay_123", sign("other-secret", []byte("order_abc|pay_123"))) {
			t.Error("expected signature with wrong secret to fail")
		}
	})

	t.Run("malformed input rejected", func(t *testing.T) {
		if verifier.VerifyClientConfirmation("", "pay_123", valid) {
			t.Error("expected empty order id to fail")
		}
		if verifier.VerifyClientConfirmation("order_abc", "", valid) {
			t.Error("expected empty payment id to fail")
		}
		if verifier.VerifyClientConfirmation("order_abc", "pay_123", "") {
			t.Error("expected empty signature to fail")
		}
		if verifier.VerifyClientConfirmation("order_abc", "pay_123", "not-hex-garbage") {
			t.Error("expected garbage signature to fail")
		}
	})
}

func TestSignatureVerifier_VerifyWebhook(t *testing.T) {
	verifier := NewSignatureVerifier("api-secret", "webhook-secret", true, zap.NewNop())

	body := []byte(`{"event":"payment.captured","payload":{}}`)

	t.Run("valid signature over raw bytes accepted", func(t *testing.T) {
		if !verifier.VerifyWebhook(body, sign("webhook-secret", body)) {
			t.Error("expected valid webhook signature to verify")
		}
	})

	t.Run("signature over different bytes rejected", func(t *testing.T) {
		other := []byte(`{"event":"payment.captured","payload":{}} `)
		if verifier.VerifyWebhook(body, sign("webhook-secret", other)) {
			t.Error("expected signature over re-serialized body to fail")
		}
	})

	t.Run("empty body rejected", func(t *testing.T) {
		if verifier.VerifyWebhook(nil, sign("webhook-secret", nil)) {
			t.Error("expected empty body to fail")
		}
	})
}

func TestSignatureVerifier_MissingSecret(t *testing.T) {
	body := []byte(`{}`)

	t.Run("production fails closed", func(t *testing.T) {
		verifier := NewSignatureVerifier("", "", true, zap.NewNop())
		if verifier.VerifyClientConfirmation("order_abc", "pay_123", "sig") {
			t.Error("expected missing api secret to fail closed in production")
		}
		if verifier.VerifyWebhook(body, "sig") {
			t.Error("expected missing webhook secret to fail closed in production")
		}
	})

	t.Run("development short-circuits to true", func(t *testing.T) {
		verifier := NewSignatureVerifier("", "", false, zap.NewNop())
		if !verifier.VerifyClientConfirmation("order_abc", "pay_123", "sig") {
			t.Error("expected missing api secret to pass in development")
		}
		if !verifier.VerifyWebhook(body, "sig") {
			t.Error("expected missing webhook secret to pass in development")
		}
	})
}
