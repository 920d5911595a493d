package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CART DOMAIN ERRORS
// =============================================================================

var (
	ErrCartNotFound     = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
	ErrMissingCartRef   = &Error{Code: EINVALID, Message: "A user or guest cart token is required"}
)

// CartRef identifies a cart by its owner: a signed-in user or an anonymous
// guest token. Exactly one of the two is set.
type CartRef struct {
	UserID     uuid.UUID
	GuestToken string
}

// IsGuest reports whether the reference points at an anonymous cart.
func (r CartRef) IsGuest() bool {
	return r.UserID == uuid.Nil
}

// IsZero reports whether neither owner is set.
func (r CartRef) IsZero() bool {
	return r.UserID == uuid.Nil && r.GuestToken == ""
}

// CartService manages the pre-order basket for users and guests.
type CartService interface {
	// AddItem adds quantity units of a product, creating the cart on first add.
	// An existing line for the product is incremented instead of duplicated.
	// Fails with ErrOutOfStock when the resulting quantity exceeds current stock.
	AddItem(ctx context.Context, ref CartRef, productID uuid.UUID, quantity int) (*CartSummary, error)

	// UpdateQuantity sets a line's quantity. Quantity must be at least 1.
	UpdateQuantity(ctx context.Context, ref CartRef, itemID uuid.UUID, quantity int) (*CartSummary, error)

	// RemoveItem deletes a line from the cart.
	RemoveItem(ctx context.Context, ref CartRef, itemID uuid.UUID) (*CartSummary, error)

	// Summary returns the cart with its lines and snapshot totals.
	// A missing cart yields an empty summary.
	Summary(ctx context.Context, ref CartRef) (*CartSummary, error)

	// Merge folds the guest cart into the user's cart after login and deletes
	// the guest cart. Calling it again once the guest cart is gone is a no-op.
	Merge(ctx context.Context, guestToken string, userID uuid.UUID) (*MergeResult, error)
}

// Cart is the cart header.
type Cart struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	GuestToken string
	Version    int64
	UpdatedAt  time.Time
}

// CartSummary aggregates cart information with items and snapshot totals.
type CartSummary struct {
	Cart          Cart
	Items         []CartItem
	SubtotalCents int64
	ItemCount     int
}

// IsEmpty reports whether the cart holds no lines.
func (s *CartSummary) IsEmpty() bool {
	return s == nil || len(s.Items) == 0
}

// CartItem is a cart line. UnitPriceCents is the price captured when the
// line was created; it is not repriced from the live product.
type CartItem struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	ProductName    string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
	Available      int
}

// MergeResult describes what a guest-to-user merge did.
type MergeResult struct {
	// Merged is false when there was no guest cart to merge.
	Merged      bool
	MovedLines  int
	SummedLines int

	// Dropped lists units that did not fit under current stock.
	Dropped []DroppedUnits

	Summary *CartSummary
}

// Partial reports whether any guest units were dropped by the stock cap.
func (r *MergeResult) Partial() bool {
	return r != nil && len(r.Dropped) > 0
}

// DroppedUnits records guest quantity discarded during a merge.
type DroppedUnits struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
}
