package api

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/handler"
)

const defaultHistoryLimit = 50

// AccountHandler serves a signed-in user's orders, credit balance and coupon
// redemption.
type AccountHandler struct {
	orders  domain.OrderService
	credits domain.CreditLedger
	coupons domain.CouponLedger
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(orders domain.OrderService, credits domain.CreditLedger, coupons domain.CouponLedger) *AccountHandler {
	return &AccountHandler{orders: orders, credits: credits, coupons: coupons}
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	// OrderAmount is a decimal string checked against the coupon minimum.
	OrderAmount string `json:"orderAmount" validate:"omitempty,numeric"`
}

type creditsResponse struct {
	BalanceCents int64                       `json:"balanceCents"`
	Balance      string                      `json:"balance"`
	Transactions []creditTransactionResponse `json:"transactions"`
}

type redemptionResponse struct {
	Code           string                     `json:"code"`
	Effect         string                     `json:"effect"`
	CreditAmount   int64                      `json:"creditAmount"`
	DiscountAmount int64                      `json:"discountAmount"`
	UsedCount      int                        `json:"usedCount"`
	Transaction    *creditTransactionResponse `json:"transaction,omitempty"`
}

// Orders handles GET /api/orders
func (h *AccountHandler) Orders(w http.ResponseWriter, r *http.Request) {
	limit, err := handler.QueryInt(r, "limit", 0)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	orders, err := h.orders.ListForUser(r.Context(), domain.UserIDFromContext(r.Context()), limit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}

// Order handles GET /api/orders/{id}
func (h *AccountHandler) Order(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.GetForUser(r.Context(), domain.UserIDFromContext(r.Context()), orderID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// Credits handles GET /api/credits
func (h *AccountHandler) Credits(w http.ResponseWriter, r *http.Request) {
	limit, err := handler.QueryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	ctx := r.Context()
	userID := domain.UserIDFromContext(ctx)

	balance, err := h.credits.Balance(ctx, userID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	history, err := h.credits.History(ctx, userID, limit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := creditsResponse{
		BalanceCents: balance,
		Balance:      domain.FormatMinor(balance),
		Transactions: make([]creditTransactionResponse, 0, len(history)),
	}
	for i := range history {
		resp.Transactions = append(resp.Transactions, newCreditTransactionResponse(&history[i]))
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}

// CheckCoupon handles POST /api/coupons/check
func (h *AccountHandler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeCoupon(w, r)
	if !ok {
		return
	}

	coupon, err := h.coupons.Check(r.Context(), req.Code, amount)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newCouponResponse(coupon))
}

// RedeemCoupon handles POST /api/coupons/redeem
//
// Only credit coupons can be redeemed here; discount coupons are applied by
// passing their code to checkout.
func (h *AccountHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := h.decodeCoupon(w, r)
	if !ok {
		return
	}

	red, err := h.coupons.Redeem(r.Context(), req.Code, domain.UserIDFromContext(r.Context()), amount)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := redemptionResponse{
		Code:           red.Code,
		Effect:         string(red.Effect),
		CreditAmount:   red.CreditAmount,
		DiscountAmount: red.DiscountAmount,
		UsedCount:      red.UsedCount,
	}
	if red.CreditTransaction != nil {
		tx := newCreditTransactionResponse(red.CreditTransaction)
		resp.Transaction = &tx
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) decodeCoupon(w http.ResponseWriter, r *http.Request) (couponRequest, int64, bool) {
	var req couponRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return req, 0, false
	}

	var amount int64
	if req.OrderAmount != "" {
		var err error
		amount, err = domain.ParseMinor(req.OrderAmount)
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return req, 0, false
		}
	}
	return req, amount, true
}
