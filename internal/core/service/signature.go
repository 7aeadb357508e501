package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
)

// SignatureVerifier authenticates client payment confirmations and
// server-to-server webhook payloads with HMAC-SHA256. Webhook
// verification accepts only the exact raw request body bytes: verifying
// a re-serialized body is the bug class this type exists to prevent.
type SignatureVerifier struct {
	apiSecret     []byte
	webhookSecret []byte
	production    bool
	logger        *zap.Logger
}

// NewSignatureVerifier creates a verifier over the shared API secret
// (client confirmations) and webhook secret (raw webhook bodies).
func NewSignatureVerifier(apiSecret, webhookSecret string, production bool, logger *zap.Logger) *SignatureVerifier {
	return &SignatureVerifier{
		apiSecret:     []byte(apiSecret),
		webhookSecret: []byte(webhookSecret),
		production:    production,
		logger:        logger,
	}
}

// VerifyClientConfirmation recomputes the HMAC over
// "remoteOrderID|remotePaymentID" and compares in constant time.
func (v *SignatureVerifier) VerifyClientConfirmation(remoteOrderID, remotePaymentID, signature string) bool {
	if remoteOrderID == "" || remotePaymentID == "" || signature == "" {
		return false
	}
	if len(v.apiSecret) == 0 {
		return v.allowUnsigned("client confirmation")
	}
	payload := remoteOrderID + "|" + remotePaymentID
	return verifyHMAC(v.apiSecret, []byte(payload), signature)
}

// VerifyWebhook recomputes the HMAC over the exact raw body bytes.
func (v *SignatureVerifier) VerifyWebhook(rawBody []byte, signatureHeader string) bool {
	if len(rawBody) == 0 || signatureHeader == "" {
		return false
	}
	if len(v.webhookSecret) == 0 {
		return v.allowUnsigned("webhook")
	}
	return verifyHMAC(v.webhookSecret, rawBody, signatureHeader)
}

// allowUnsigned short-circuits to true outside production when no
// secret is configured. Production always fails closed.
func (v *SignatureVerifier) allowUnsigned(kind string) bool {
	if v.production {
		v.logger.Error("signature secret missing in production, failing closed", zap.String("kind", kind))
		return false
	}
	v.logger.Warn("signature secret missing, skipping verification", zap.String("kind", kind))
	return true
}

func verifyHMAC(secret, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
