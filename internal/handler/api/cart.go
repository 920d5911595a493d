package api

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/cookie"
	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/handler"
	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/google/uuid"
)

// CartHandler serves the cart API for signed-in users and guests.
type CartHandler struct {
	carts   domain.CartService
	cookies *cookie.Config
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(carts domain.CartService, cookies *cookie.Config) *CartHandler {
	return &CartHandler{carts: carts, cookies: cookies}
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=1000"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=1000"`
}

// View handles GET /api/cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	ref := domain.CartRefFromContext(r.Context())
	if ref.IsZero() {
		handler.WriteJSON(w, http.StatusOK, newCartResponse(nil))
		return
	}

	summary, err := h.carts.Summary(r.Context(), ref)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newCartResponse(summary))
}

// AddItem handles POST /api/cart/items
//
// A guest without a cart token gets a fresh one, returned both as the cart
// cookie and in the X-Cart-Token response header.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	ref := domain.CartRefFromContext(r.Context())
	issued := false
	if ref.IsZero() {
		ref.GuestToken = uuid.NewString()
		issued = true
	}

	summary, err := h.carts.AddItem(r.Context(), ref, uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if ref.IsGuest() {
		if issued {
			middleware.GetLogger(r.Context()).Info("guest cart started", "cart_id", summary.Cart.ID)
		}
		h.cookies.SetCart(w, ref.GuestToken)
		w.Header().Set(middleware.CartTokenHeader, ref.GuestToken)
	}
	handler.WriteJSON(w, http.StatusOK, newCartResponse(summary))
}

// UpdateItem handles PATCH /api/cart/items/{id}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	var req updateItemRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	ref := domain.CartRefFromContext(r.Context())
	if ref.IsZero() {
		handler.ErrorResponse(w, r, domain.ErrCartNotFound)
		return
	}

	summary, err := h.carts.UpdateQuantity(r.Context(), ref, itemID, req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newCartResponse(summary))
}

// RemoveItem handles DELETE /api/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := handler.PathUUID(r, "id")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	ref := domain.CartRefFromContext(r.Context())
	if ref.IsZero() {
		handler.ErrorResponse(w, r, domain.ErrCartNotFound)
		return
	}

	summary, err := h.carts.RemoveItem(r.Context(), ref, itemID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, newCartResponse(summary))
}

// Merge handles POST /api/cart/merge
//
// Called by the authentication collaborator right after a login succeeds,
// with both the user header and the guest cart cookie present. The cookie is
// cleared once the guest cart has been folded in.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := domain.UserIDFromContext(ctx)
	guestToken := domain.GuestTokenFromContext(ctx)

	if guestToken == "" {
		summary, err := h.carts.Summary(ctx, domain.CartRef{UserID: userID})
		if err != nil {
			handler.ErrorResponse(w, r, err)
			return
		}
		handler.WriteJSON(w, http.StatusOK, newMergeResponse(&domain.MergeResult{Summary: summary}))
		return
	}

	result, err := h.carts.Merge(ctx, guestToken, userID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	h.cookies.ClearCart(w)
	handler.WriteJSON(w, http.StatusOK, newMergeResponse(result))
}
