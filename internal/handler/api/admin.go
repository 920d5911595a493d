package api

import (
	"net/http"
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/handler"
)

// AdminHandler serves the staff API. Every balance change goes through the
// credit ledger, so admin corrections show up in the user's history.
type AdminHandler struct {
	orders  domain.OrderService
	credits domain.CreditLedger
	coupons domain.CouponLedger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(orders domain.OrderService, credits domain.CreditLedger, coupons domain.CouponLedger) *AdminHandler {
	return &AdminHandler{orders: orders, credits: credits, coupons: coupons}
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing completed cancelled"`
}

type adjustRequest struct {
	// Amount is a signed decimal string, e.g. "25.00" or "-5.50".
	Amount string `json:"amount" validate:"required,numeric"`
	Note   string `json:"note" validate:"required,max=500"`
}

type createCouponRequest struct {
	Code      string    `json:"code" validate:"required,max=64"`
	Effect    string    `json:"effect" validate:"required,oneof=credit discount"`
	Value     string    `json:"value" validate:"required,numeric"`
	MinAmount string    `json:"minAmount" validate:"omitempty,numeric"`
	MaxUses   int       `json:"maxUses" validate:"required,min=1"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
	IsActive  *bool     `json:"isActive"`
}

type reconcileResponse struct {
	UserID        string `json:"userId"`
	CachedBalance int64  `json:"cachedBalance"`
	LedgerBalance int64  `json:"ledgerBalance"`
	Consistent    bool   `json:"consistent"`
}

func staffActor(r *http.Request) domain.Actor {
	return domain.Actor{Kind: domain.ActorStaff, ID: domain.StaffIDFromContext(r.Context()).String()}
}

// SetOrderStatus handles POST /admin/api/orders/{id}/status
func (h *AdminHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	var req statusRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.Transition(r.Context(), orderID, domain.OrderStatus(req.Status), staffActor(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

// UserCredits handles GET /admin/api/users/{id}/credits
func (h *AdminHandler) UserCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	limit, err := handler.QueryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	balance, err := h.credits.Balance(r.Context(), userID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	history, err := h.credits.History(r.Context(), userID, limit)
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

// AdjustCredits handles POST /admin/api/users/{id}/credits
func (h *AdminHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	var req adjustRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	amount, err := domain.ParseMinor(req.Amount)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	note := req.Note + " (staff " + domain.StaffIDFromContext(r.Context()).String() + ")"
	tx, err := h.credits.Adjust(r.Context(), userID, amount, note)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, newCreditTransactionResponse(tx))
}

// Reconcile handles GET /admin/api/users/{id}/credits/reconcile
//
// Answers 409 with both figures when the cached balance has drifted from
// the transaction log.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	rec, err := h.credits.Reconcile(r.Context(), userID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	status := http.StatusOK
	if !rec.Consistent() {
		status = http.StatusConflict
	}
	handler.WriteJSON(w, status, reconcileResponse{
		UserID:        rec.UserID.String(),
		CachedBalance: rec.CachedBalance,
		LedgerBalance: rec.LedgerBalance,
		Consistent:    rec.Consistent(),
	})
}

// CreateCoupon handles POST /admin/api/coupons
func (h *AdminHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	value, err := domain.ParseMinor(req.Value)
	if err != nil {
		handler.ErrorResponse(w, r, domain.NewValidationError("coupon.create", "value", "must be a decimal with at most two places"))
		return
	}
	var minAmount int64
	if req.MinAmount != "" {
		minAmount, err = domain.ParseMinor(req.MinAmount)
		if err != nil {
			handler.ErrorResponse(w, r, domain.NewValidationError("coupon.create", "minAmount", "must be a decimal with at most two places"))
			return
		}
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	coupon, err := h.coupons.Create(r.Context(), domain.NewCoupon{
		Code:      req.Code,
		Effect:    domain.CouponEffect(req.Effect),
		Value:     value,
		MinAmount: minAmount,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		IsActive:  active,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, newCouponResponse(coupon))
}
