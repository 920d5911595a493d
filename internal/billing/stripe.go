package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider with Stripe Checkout.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProvider creates a Stripe-backed provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	return &StripeProvider{
		api:    client.New(config.APIKey, nil),
		config: config,
	}, nil
}

// CreateCheckoutSession creates a payment-mode Checkout Session for an order.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(params.OrderID),
		SuccessURL:        stripe.String(orderURL(params.SuccessURL, params.OrderID)),
		CancelURL:         stripe.String(orderURL(params.CancelURL, params.OrderID)),
		LineItems:         stripeLineItems(params),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": params.OrderID},
		},
	}
	sessionParams.Context = ctx
	sessionParams.AddMetadata("order_id", params.OrderID)
	sessionParams.AddMetadata("order_number", params.OrderNumber)
	for k, v := range params.Metadata {
		sessionParams.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		sessionParams.SetIdempotencyKey(params.IdempotencyKey)
	}

	session, err := s.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &CheckoutSession{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: time.Unix(session.ExpiresAt, 0),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps Checkout
// Session events to payment outcomes.
func (s *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, ErrInvalidWebhookPayload
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	out.SessionID = session.ID
	out.OrderID = session.Metadata["order_id"]
	if out.OrderID == "" {
		out.OrderID = session.ClientReferenceID
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session unpaid and settle
		// later through the async events.
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Outcome = OutcomePaid
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		out.Outcome = OutcomePaid
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		out.Outcome = OutcomeFailed
	case stripe.EventTypeCheckoutSessionExpired:
		out.Outcome = OutcomeExpired
	}
	return out, nil
}

func stripeLineItems(params CheckoutSessionParams) []*stripe.CheckoutSessionLineItemParams {
	currency := strings.ToLower(params.Currency)

	if params.DiscountCents > 0 || len(params.LineItems) == 0 {
		return []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.TotalCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + params.OrderNumber),
					},
				},
				Quantity: stripe.Int64(1),
			},
		}
	}

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(params.LineItems))
	for _, li := range params.LineItems {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(li.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	return items
}

func orderURL(base, orderID string) string {
	return strings.ReplaceAll(base, "{ORDER_ID}", orderID)
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &StripeError{
			Message:       stripeErr.Msg,
			Code:          string(stripeErr.Code),
			DeclineCode:   string(stripeErr.DeclineCode),
			StripeCode:    fmt.Sprintf("%d", stripeErr.HTTPStatusCode),
			RequestID:     stripeErr.RequestID,
			OriginalError: errors.Join(ErrSessionFailed, err),
		}
	}
	return fmt.Errorf("%w: %v", ErrSessionFailed, err)
}
