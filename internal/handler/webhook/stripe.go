package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/licensa/internal/billing"
	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/handler"
	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "Stripe-Signature"

// StripeHandler turns verified payment provider callbacks into order
// lifecycle transitions.
type StripeHandler struct {
	provider billing.Provider
	orders   domain.OrderService
}

// NewStripeHandler creates a new webhook handler.
func NewStripeHandler(provider billing.Provider, orders domain.OrderService) *StripeHandler {
	return &StripeHandler{provider: provider, orders: orders}
}

type ackResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// HandleWebhook handles POST /webhooks/stripe
//
// Only internal failures answer 5xx, which makes the provider retry. Events
// that do not settle a payment, reference an unknown order, or arrive after
// the order settled are acknowledged so they are not redelivered forever.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger checkout.session.completed
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := middleware.GetLogger(r.Context())

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.read", "Error reading request body"))
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.verify", "Missing signature"))
		return
	}

	event, err := h.provider.ParseWebhook(payload, signature)
	if err != nil {
		recordFailure("unknown", "verify")
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "webhook.verify", "Invalid signature"))
			return
		}
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.parse", "Invalid payload"))
		return
	}

	logger = logger.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(event.Type).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
		}()
	}

	if event.Outcome == billing.OutcomeNone || event.OrderID == "" {
		logger.Debug("webhook ignored")
		handler.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: "ignored"})
		return
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		logger.Warn("webhook order id is not a uuid", "order_id", event.OrderID)
		recordFailure(event.Type, "bad_order_id")
		handler.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: "ignored"})
		return
	}

	order, err := h.orders.HandlePaymentEvent(r.Context(), domain.PaymentEvent{
		EventID:   event.ID,
		OrderID:   orderID,
		SessionID: event.SessionID,
		Outcome:   domain.PaymentOutcome(event.Outcome),
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			recordFailure(event.Type, "internal")
			handler.ErrorResponse(w, r, err)
			return
		}
		logger.Warn("webhook rejected", "order_id", orderID, "error", err)
		recordFailure(event.Type, domain.ErrorCode(err))
		handler.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: "rejected"})
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(event.Type).Inc()
	}
	logger.Info("webhook processed", "order_id", order.ID, "outcome", event.Outcome, "status", order.Status)
	handler.WriteJSON(w, http.StatusOK, ackResponse{Received: true, Status: string(order.Status)})
}

func recordFailure(eventType, reason string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookFailed.WithLabelValues(eventType, reason).Inc()
	}
}
