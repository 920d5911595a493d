package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Cart struct {
	ID         uuid.UUID
	UserID     pgtype.UUID
	GuestToken pgtype.Text
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CartItem struct {
	ID             uuid.UUID
	CartID         uuid.UUID
	ProductID      uuid.UUID
	Quantity       int32
	UnitPriceCents int64
	CreatedAt      time.Time
}

type CheckoutAttempt struct {
	Token       string
	UserID      uuid.UUID
	CartID      uuid.UUID
	CartVersion int64
	OrderID     pgtype.UUID
	CreatedAt   time.Time
	CompletedAt pgtype.Timestamptz
}

type Coupon struct {
	ID        uuid.UUID
	Code      string
	Effect    string
	Value     int64
	MinAmount int64
	MaxUses   int32
	UsedCount int32
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

type CouponUsage struct {
	ID              uuid.UUID
	CouponID        uuid.UUID
	UserID          uuid.UUID
	OrderID         pgtype.UUID
	CreditAmount    int64
	DiscountAmount  int64
	CreatedAt       time.Time
	CreditGrantedAt pgtype.Timestamptz
	ReversedAt      pgtype.Timestamptz
}

type CreditTransaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	Amount    int64
	Note      string
	OrderID   pgtype.UUID
	CreatedAt time.Time
	Seq       int64
}

type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            uuid.UUID
	Status            string
	PaymentMethodID   uuid.UUID
	CouponID          pgtype.UUID
	SubtotalCents     int64
	DiscountCents     int64
	TotalCents        int64
	CreditPaidCents   int64
	Currency          string
	ProviderSessionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	ProductID       uuid.UUID
	ProductName     string
	Quantity        int32
	UnitPriceCents  int64
	TotalPriceCents int64
}

type PaymentMethod struct {
	ID        uuid.UUID
	Name      string
	Kind      string
	Provider  string
	IsActive  bool
	SortOrder int32
	CreatedAt time.Time
}

type Product struct {
	ID         uuid.UUID
	Name       string
	Slug       string
	PriceCents int64
	Stock      int32
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type User struct {
	ID        uuid.UUID
	Email     string
	Credits   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
