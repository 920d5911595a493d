package domain

import (
	"context"
	"strings"
	"time"

	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
)

// CouponEffect says what a redeemed coupon's value does.
type CouponEffect string

const (
	// CouponEffectCredit grants Value credits to the redeeming user.
	CouponEffectCredit CouponEffect = "credit"

	// CouponEffectDiscount lowers the order total by Value, never below zero.
	CouponEffectDiscount CouponEffect = "discount"
)

// Valid reports whether e is a known effect.
func (e CouponEffect) Valid() bool {
	return e == CouponEffectCredit || e == CouponEffectDiscount
}

var (
	ErrCouponCodeTaken     = &Error{Code: ECONFLICT, Message: "Coupon code already exists"}
	ErrCouponNeedsCheckout = &Error{Code: EINVALID, Message: "Discount coupons can only be applied at checkout"}
)

// NormalizeCouponCode trims and upper-cases a code so lookups are
// case-insensitive.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Coupon is a redeemable code with a usage cap and validity window.
type Coupon struct {
	ID        uuid.UUID
	Code      string
	Effect    CouponEffect
	Value     int64
	MinAmount int64
	MaxUses   int
	UsedCount int
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Eligibility evaluates the coupon against an order amount at now.
// Failures are reported in precedence order: expired, inactive,
// exhausted, minimum amount.
func (c *Coupon) Eligibility(now time.Time, orderAmount int64) error {
	op := "coupon.check"
	switch {
	case !now.Before(c.ExpiresAt):
		return ErrCouponExpired.WithDetail(op, "")
	case !c.IsActive:
		return ErrCouponInactive.WithDetail(op, "")
	case c.UsedCount >= c.MaxUses:
		return ErrCouponExhausted.WithDetail(op, "")
	case orderAmount < c.MinAmount:
		return ErrCouponMinAmountNotMet.WithDetail(op, "")
	}
	return nil
}

// DiscountFor returns how much the coupon takes off amount.
func (c *Coupon) DiscountFor(amount int64) int64 {
	if c.Effect != CouponEffectDiscount {
		return 0
	}
	return min(c.Value, amount)
}

// NewCoupon holds the fields for creating a coupon.
type NewCoupon struct {
	Code      string
	Effect    CouponEffect
	Value     int64
	MinAmount int64
	MaxUses   int
	ExpiresAt time.Time
	IsActive  bool
}

// RedeemParams describes one coupon use. OrderID is uuid.Nil outside
// checkout. DeferCredit records a credit coupon's amount without paying it
// out; SettleTx pays it once the order's payment lands.
type RedeemParams struct {
	UserID      uuid.UUID
	OrderID     uuid.UUID
	OrderAmount int64
	DeferCredit bool
}

// Redemption is the outcome of a successful coupon redeem.
type Redemption struct {
	CouponID       uuid.UUID
	Code           string
	Effect         CouponEffect
	CreditAmount   int64
	DiscountAmount int64
	UsedCount      int
	CreditDeferred bool

	// CreditTransaction is the ledger row written for a credit coupon. Nil
	// while the credit is deferred.
	CreditTransaction *CreditTransaction
}

// CouponLedger owns coupon usage counters.
type CouponLedger interface {
	// Check is the read-only eligibility test used while validating a checkout.
	Check(ctx context.Context, code string, orderAmount int64) (*Coupon, error)

	// Redeem consumes one use of a credit coupon outside checkout.
	Redeem(ctx context.Context, code string, userID uuid.UUID, orderAmount int64) (*Redemption, error)

	// RedeemTx consumes one use inside a caller-owned transaction.
	RedeemTx(ctx context.Context, q repository.Querier, coupon *Coupon, params RedeemParams) (*Redemption, error)

	// SettleTx pays out coupon credit deferred against orderID.
	SettleTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*CreditTransaction, error)

	// ReverseTx hands every coupon use linked to orderID back to its coupon
	// and takes back coupon credit already paid out. Fails with
	// ErrInsufficientCredit when that credit has since been spent.
	ReverseTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*CreditTransaction, error)

	Create(ctx context.Context, params NewCoupon) (*Coupon, error)
}
