package api

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/handler"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader may carry the checkout attempt token instead of the
// request body.
const IdempotencyKeyHeader = "Idempotency-Key"

// CheckoutHandler serves checkout and payment method listing.
type CheckoutHandler struct {
	checkout domain.CheckoutService
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(checkout domain.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type checkoutRequest struct {
	CartID          string `json:"cartId" validate:"omitempty,uuid"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required,uuid"`
	CouponCode      string `json:"couponCode" validate:"omitempty,max=64"`
	AttemptToken    string `json:"attemptToken" validate:"omitempty,max=64"`
}

// PaymentMethods handles GET /api/payment-methods
func (h *CheckoutHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.checkout.PaymentMethods(r.Context())
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := make([]paymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		resp = append(resp, paymentMethodResponse{
			ID:       m.ID,
			Name:     m.Name,
			Kind:     string(m.Kind),
			Provider: m.Provider,
		})
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}

// BeginAttempt handles POST /api/checkout/attempts
func (h *CheckoutHandler) BeginAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.checkout.BeginAttempt(r.Context(), domain.UserIDFromContext(r.Context()))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, attemptResponse{
		Token:       attempt.Token,
		CartID:      attempt.CartID,
		CartVersion: attempt.CartVersion,
		CreatedAt:   attempt.CreatedAt,
	})
}

// Checkout handles POST /api/checkout
//
// Responds 201 for a new order and 200 when an attempt token replays an
// order that was already placed. Provider-paid orders come back pending
// with a redirectUrl.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	params := domain.CheckoutParams{
		UserID:          domain.UserIDFromContext(r.Context()),
		PaymentMethodID: uuid.MustParse(req.PaymentMethodID),
		CouponCode:      req.CouponCode,
		AttemptToken:    req.AttemptToken,
	}
	if req.CartID != "" {
		params.CartID = uuid.MustParse(req.CartID)
	}
	if params.AttemptToken == "" {
		params.AttemptToken = r.Header.Get(IdempotencyKeyHeader)
	}

	result, err := h.checkout.Checkout(r.Context(), params)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	handler.WriteJSON(w, status, newCheckoutResponse(result))
}
