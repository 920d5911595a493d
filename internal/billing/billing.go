// Package billing talks to the external payment provider. Orders paid this
// way are created pending; the provider hosts the payment page and reports
// the outcome through a signed webhook.
package billing

import (
	"context"
	"time"
)

// Provider defines the interface for hosted payment flows.
// Implementations can use Stripe, PayPal, Square, etc.
type Provider interface {
	// CreateCheckoutSession starts a hosted payment for one order and returns
	// the URL the customer is redirected to.
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// ParseWebhook verifies the signature of a callback and decodes it.
	// Returns ErrInvalidWebhookSignature when verification fails.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutSessionParams contains parameters for creating a hosted checkout.
type CheckoutSessionParams struct {
	OrderID     string
	OrderNumber string

	// Currency code (ISO 4217) - e.g., "usd", "eur"
	Currency string

	// LineItems are the order lines at their snapshot prices.
	LineItems []LineItem

	// DiscountCents is taken off the line total. When non-zero the session
	// carries a single line for the payable total instead of per-item lines.
	DiscountCents int64

	// TotalCents is the amount the customer pays.
	TotalCents int64

	SuccessURL string
	CancelURL  string

	// Metadata for filtering and reporting (always includes order_id)
	Metadata map[string]string

	// IdempotencyKey prevents duplicate sessions for the same order
	IdempotencyKey string
}

// LineItem is one priced line on the hosted payment page.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutSession is a created hosted payment.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// Outcome is the final payment status carried by a webhook.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
	OutcomeExpired Outcome = "expired"
)

// WebhookEvent is a verified provider callback.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string

	// OrderID is read from the session metadata; empty for events that do
	// not belong to an order.
	OrderID string

	// Outcome is OutcomeNone for events that do not settle a payment.
	Outcome Outcome
}
