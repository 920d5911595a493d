package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the post-checkout lifecycle state.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CanTransitionTo reports whether the lifecycle allows s -> to.
// A transition to the current status is allowed and is a no-op.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case OrderPending:
		return to == OrderProcessing || to == OrderCancelled
	case OrderProcessing:
		return to == OrderCompleted || to == OrderCancelled
	}
	return false
}

// Order-related domain errors.
var (
	ErrOrderNotFound     = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrInvalidTransition = &Error{Code: ECONFLICT, Message: "Order status transition not allowed"}
	ErrInvalidStatus     = &Error{Code: EINVALID, Message: "Unknown order status"}
)

// Actor identifies who drove a lifecycle transition.
type Actor struct {
	Kind string
	ID   string
}

const (
	ActorStaff    = "staff"
	ActorProvider = "provider"
	ActorSystem   = "system"
	ActorCheckout = "checkout"
)

// Order is a confirmed or pending purchase. Totals are fixed at creation.
type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            uuid.UUID
	Status            OrderStatus
	PaymentMethodID   uuid.UUID
	CouponID          uuid.UUID
	SubtotalCents     int64
	DiscountCents     int64
	TotalCents        int64
	CreditPaidCents   int64
	Currency          string
	ProviderSessionID string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem snapshots a cart line at checkout.
type OrderItem struct {
	ProductID       uuid.UUID
	ProductName     string
	Quantity        int
	UnitPriceCents  int64
	TotalPriceCents int64
}

// PaymentOutcome is the final status a payment provider reports for an order.
type PaymentOutcome string

const (
	PaymentPaid    PaymentOutcome = "paid"
	PaymentFailed  PaymentOutcome = "failed"
	PaymentExpired PaymentOutcome = "expired"
)

// PaymentEvent is a provider callback resolved to one of our orders.
type PaymentEvent struct {
	EventID   string
	OrderID   uuid.UUID
	SessionID string
	Outcome   PaymentOutcome
}

// OrderService drives the order lifecycle.
type OrderService interface {
	Get(ctx context.Context, orderID uuid.UUID) (*Order, error)

	// GetForUser returns ErrOrderNotFound when the order belongs to someone else.
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)

	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Order, error)

	// Transition moves an order to a new status. Cancelling releases the
	// reserved stock, refunds any credit paid and reverses coupon use, in one
	// transaction.
	Transition(ctx context.Context, orderID uuid.UUID, to OrderStatus, actor Actor) (*Order, error)

	// HandlePaymentEvent applies a provider callback: paid moves the order to
	// processing, failed or expired cancel it.
	HandlePaymentEvent(ctx context.Context, event PaymentEvent) (*Order, error)

	// ExpireStalePending cancels pending orders older than olderThan and
	// returns how many were cancelled.
	ExpireStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}
