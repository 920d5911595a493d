// Package api holds the JSON handlers for the storefront and admin APIs.
//
// Money leaves the API twice: as integer minor units ("...Cents") for
// programs and as a fixed two-place decimal string for display.
package api

import (
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/google/uuid"
)

type cartItemResponse struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"productId"`
	ProductName    string    `json:"productName"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	UnitPrice      string    `json:"unitPrice"`
	LineTotalCents int64     `json:"lineTotalCents"`
	LineTotal      string    `json:"lineTotal"`
	Available      int       `json:"available"`
}

type cartResponse struct {
	ID            *uuid.UUID         `json:"id,omitempty"`
	Version       int64              `json:"version"`
	Items         []cartItemResponse `json:"items"`
	ItemCount     int                `json:"itemCount"`
	SubtotalCents int64              `json:"subtotalCents"`
	Subtotal      string             `json:"subtotal"`
}

func newCartResponse(s *domain.CartSummary) cartResponse {
	resp := cartResponse{Items: []cartItemResponse{}, Subtotal: domain.FormatMinor(0)}
	if s == nil {
		return resp
	}
	if s.Cart.ID != uuid.Nil {
		id := s.Cart.ID
		resp.ID = &id
	}
	resp.Version = s.Cart.Version
	resp.ItemCount = s.ItemCount
	resp.SubtotalCents = s.SubtotalCents
	resp.Subtotal = domain.FormatMinor(s.SubtotalCents)
	for _, item := range s.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			UnitPrice:      domain.FormatMinor(item.UnitPriceCents),
			LineTotalCents: item.LineTotalCents,
			LineTotal:      domain.FormatMinor(item.LineTotalCents),
			Available:      item.Available,
		})
	}
	return resp
}

type droppedResponse struct {
	ProductID   uuid.UUID `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
}

type mergeResponse struct {
	Merged      bool              `json:"merged"`
	Partial     bool              `json:"partial"`
	MovedLines  int               `json:"movedLines"`
	SummedLines int               `json:"summedLines"`
	Dropped     []droppedResponse `json:"dropped"`
	Cart        cartResponse      `json:"cart"`
}

func newMergeResponse(r *domain.MergeResult) mergeResponse {
	resp := mergeResponse{
		Merged:      r.Merged,
		Partial:     r.Partial(),
		MovedLines:  r.MovedLines,
		SummedLines: r.SummedLines,
		Dropped:     []droppedResponse{},
		Cart:        newCartResponse(r.Summary),
	}
	for _, d := range r.Dropped {
		resp.Dropped = append(resp.Dropped, droppedResponse(d))
	}
	return resp
}

type paymentMethodResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Provider string    `json:"provider,omitempty"`
}

type attemptResponse struct {
	Token       string    `json:"token"`
	CartID      uuid.UUID `json:"cartId"`
	CartVersion int64     `json:"cartVersion"`
	CreatedAt   time.Time `json:"createdAt"`
}

type checkoutResponse struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	TotalCents  int64     `json:"totalCents"`
	Total       string    `json:"total"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	Replayed    bool      `json:"replayed"`
}

func newCheckoutResponse(r *domain.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		OrderID:     r.OrderID,
		OrderNumber: r.OrderNumber,
		Status:      string(r.Status),
		TotalCents:  r.TotalCents,
		Total:       domain.FormatMinor(r.TotalCents),
		RedirectURL: r.RedirectURL,
		Replayed:    r.Replayed,
	}
}

type orderItemResponse struct {
	ProductID       uuid.UUID `json:"productId"`
	ProductName     string    `json:"productName"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unitPriceCents"`
	TotalPriceCents int64     `json:"totalPriceCents"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          string              `json:"status"`
	PaymentMethodID uuid.UUID           `json:"paymentMethodId"`
	CouponID        *uuid.UUID          `json:"couponId,omitempty"`
	SubtotalCents   int64               `json:"subtotalCents"`
	DiscountCents   int64               `json:"discountCents"`
	TotalCents      int64               `json:"totalCents"`
	Total           string              `json:"total"`
	CreditPaidCents int64               `json:"creditPaidCents"`
	Currency        string              `json:"currency"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func newOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		PaymentMethodID: o.PaymentMethodID,
		SubtotalCents:   o.SubtotalCents,
		DiscountCents:   o.DiscountCents,
		TotalCents:      o.TotalCents,
		Total:           domain.FormatMinor(o.TotalCents),
		CreditPaidCents: o.CreditPaidCents,
		Currency:        o.Currency,
		Items:           []orderItemResponse{},
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.CouponID != uuid.Nil {
		id := o.CouponID
		resp.CouponID = &id
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse(item))
	}
	return resp
}

type creditTransactionResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	Amount       int64      `json:"amount"`
	Display      string     `json:"display"`
	Note         string     `json:"note,omitempty"`
	OrderID      *uuid.UUID `json:"orderId,omitempty"`
	BalanceAfter int64      `json:"balanceAfter"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func newCreditTransactionResponse(tx *domain.CreditTransaction) creditTransactionResponse {
	resp := creditTransactionResponse{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		Display:      domain.FormatMinor(tx.Amount),
		Note:         tx.Note,
		BalanceAfter: tx.Balance,
		CreatedAt:    tx.CreatedAt,
	}
	if tx.OrderID != uuid.Nil {
		id := tx.OrderID
		resp.OrderID = &id
	}
	return resp
}

type couponResponse struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Effect    string    `json:"effect"`
	Value     int64     `json:"value"`
	MinAmount int64     `json:"minAmount"`
	MaxUses   int       `json:"maxUses"`
	UsedCount int       `json:"usedCount"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
}

func newCouponResponse(c *domain.Coupon) couponResponse {
	return couponResponse{
		ID:        c.ID,
		Code:      c.Code,
		Effect:    string(c.Effect),
		Value:     c.Value,
		MinAmount: c.MinAmount,
		MaxUses:   c.MaxUses,
		UsedCount: c.UsedCount,
		ExpiresAt: c.ExpiresAt,
		IsActive:  c.IsActive,
	}
}
