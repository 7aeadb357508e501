package output

import (
	"github.com/shopkart/payment-engine/internal/core"
)

// EventPublisher is an output port (secondary port) for post-transition
// payment events. Publishing happens after the ledger transaction has
// committed, and only by the transition that actually applied.
type EventPublisher interface {
	// PublishPaymentEvent publishes one payment lifecycle event.
	PublishPaymentEvent(event core.PaymentEvent) error
	// Close closes the underlying connection.
	Close() error
}
