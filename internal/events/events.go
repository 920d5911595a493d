// Package events publishes domain events for consumers outside the checkout
// engine (notifications, analytics, fulfilment). Publishing happens after a
// transaction commits and never undoes it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subjects
const (
	SubjectOrderCreated       = "orders.created"
	SubjectOrderStatusChanged = "orders.status_changed"
	SubjectCreditTransaction  = "credits.transaction"
)

// Publisher sends events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

// Envelope wraps every payload with an id for de-duplication downstream.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(subject string, data any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: now.UTC(),
		Data:       raw,
	}, nil
}

// OrderCreated is published once per committed checkout.
type OrderCreated struct {
	OrderID         uuid.UUID `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	UserID          uuid.UUID `json:"userId"`
	Status          string    `json:"status"`
	PaymentKind     string    `json:"paymentKind"`
	SubtotalCents   int64     `json:"subtotalCents"`
	DiscountCents   int64     `json:"discountCents"`
	TotalCents      int64     `json:"totalCents"`
	CreditPaidCents int64     `json:"creditPaidCents"`
	Currency        string    `json:"currency"`
	CouponCode      string    `json:"couponCode,omitempty"`
}

// OrderStatusChanged is published for every lifecycle transition that
// changed the stored status.
type OrderStatusChanged struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      uuid.UUID `json:"userId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Actor       string    `json:"actor"`
	ActorID     string    `json:"actorId,omitempty"`
}

// CreditTransaction is published for every credit ledger row.
type CreditTransaction struct {
	TransactionID uuid.UUID `json:"transactionId"`
	UserID        uuid.UUID `json:"userId"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	OrderID       uuid.UUID `json:"orderId,omitempty"`
}

// NoopPublisher drops every event. Used when NATS_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

var _ Publisher = NoopPublisher{}
