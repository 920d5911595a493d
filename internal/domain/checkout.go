package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentMethodKind separates methods settled from the credit balance from
// methods settled by an external provider.
type PaymentMethodKind string

const (
	PaymentKindCredit   PaymentMethodKind = "credit"
	PaymentKindProvider PaymentMethodKind = "provider"
)

// PaymentMethod is a selectable way to pay for an order.
type PaymentMethod struct {
	ID       uuid.UUID
	Name     string
	Kind     PaymentMethodKind
	Provider string
	IsActive bool
}

// CheckoutState names the stage a checkout attempt reached.
type CheckoutState string

const (
	CheckoutValidating CheckoutState = "validating"
	CheckoutReserving  CheckoutState = "reserving"
	CheckoutCommitting CheckoutState = "committing"
	CheckoutCompleted  CheckoutState = "completed"
	CheckoutRejected   CheckoutState = "rejected"
)

// CheckoutAttempt binds an idempotency token to a cart version.
type CheckoutAttempt struct {
	Token       string
	CartID      uuid.UUID
	CartVersion int64
	CreatedAt   time.Time
}

// CheckoutParams is the checkout request.
type CheckoutParams struct {
	UserID          uuid.UUID
	CartID          uuid.UUID
	PaymentMethodID uuid.UUID
	CouponCode      string

	// AttemptToken is optional. When set, a replay after success returns the
	// original order, and a changed cart fails with ErrConcurrentModification.
	AttemptToken string
}

// CheckoutResult is the checkout response.
type CheckoutResult struct {
	OrderID     uuid.UUID
	OrderNumber string
	Status      OrderStatus
	TotalCents  int64
	RedirectURL string
	Replayed    bool
}

// CheckoutService turns a cart into an order in one all-or-nothing step.
type CheckoutService interface {
	// BeginAttempt issues an attempt token for the user's current cart version.
	BeginAttempt(ctx context.Context, userID uuid.UUID) (*CheckoutAttempt, error)

	Checkout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error)

	// PaymentMethods lists the active payment methods.
	PaymentMethods(ctx context.Context) ([]PaymentMethod, error)
}
