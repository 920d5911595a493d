package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getCouponByCode = `-- name: GetCouponByCode :one
SELECT id, code, effect, value, min_amount, max_uses, used_count, expires_at, is_active, created_at
FROM coupons
WHERE code = $1
`

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	row := q.db.QueryRow(ctx, getCouponByCode, code)
	var i Coupon
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Effect,
		&i.Value,
		&i.MinAmount,
		&i.MaxUses,
		&i.UsedCount,
		&i.ExpiresAt,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createCoupon = `-- name: CreateCoupon :one
INSERT INTO coupons (code, effect, value, min_amount, max_uses, expires_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, code, effect, value, min_amount, max_uses, used_count, expires_at, is_active, created_at
`

type CreateCouponParams struct {
	Code      string
	Effect    string
	Value     int64
	MinAmount int64
	MaxUses   int32
	ExpiresAt time.Time
	IsActive  bool
}

func (q *Queries) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, createCoupon,
		arg.Code,
		arg.Effect,
		arg.Value,
		arg.MinAmount,
		arg.MaxUses,
		arg.ExpiresAt,
		arg.IsActive,
	)
	var i Coupon
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.Effect,
		&i.Value,
		&i.MinAmount,
		&i.MaxUses,
		&i.UsedCount,
		&i.ExpiresAt,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

// Compare-and-increment on the usage counter; eligibility is re-checked at
// write time so a coupon that expired or filled up meanwhile yields no row.
const incrementCouponUsage = `-- name: IncrementCouponUsage :one
UPDATE coupons
SET used_count = used_count + 1
WHERE id = $1 AND is_active AND expires_at > $2 AND used_count < max_uses
RETURNING used_count
`

type IncrementCouponUsageParams struct {
	ID  uuid.UUID
	Now time.Time
}

func (q *Queries) IncrementCouponUsage(ctx context.Context, arg IncrementCouponUsageParams) (int32, error) {
	row := q.db.QueryRow(ctx, incrementCouponUsage, arg.ID, arg.Now)
	var usedCount int32
	err := row.Scan(&usedCount)
	return usedCount, err
}

const insertCouponUsage = `-- name: InsertCouponUsage :one
INSERT INTO coupon_usages (coupon_id, user_id, order_id, credit_amount, discount_amount, credit_granted_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, coupon_id, user_id, order_id, credit_amount, discount_amount, created_at, credit_granted_at, reversed_at
`

type InsertCouponUsageParams struct {
	CouponID        uuid.UUID
	UserID          uuid.UUID
	OrderID         pgtype.UUID
	CreditAmount    int64
	DiscountAmount  int64
	CreditGrantedAt pgtype.Timestamptz
}

func (q *Queries) InsertCouponUsage(ctx context.Context, arg InsertCouponUsageParams) (CouponUsage, error) {
	row := q.db.QueryRow(ctx, insertCouponUsage,
		arg.CouponID,
		arg.UserID,
		arg.OrderID,
		arg.CreditAmount,
		arg.DiscountAmount,
		arg.CreditGrantedAt,
	)
	var i CouponUsage
	err := row.Scan(
		&i.ID,
		&i.CouponID,
		&i.UserID,
		&i.OrderID,
		&i.CreditAmount,
		&i.DiscountAmount,
		&i.CreatedAt,
		&i.CreditGrantedAt,
		&i.ReversedAt,
	)
	return i, err
}

// Claims coupon credit still owed for an order. Each row is claimed once.
const grantPendingCouponCredit = `-- name: GrantPendingCouponCredit :many
UPDATE coupon_usages u
SET credit_granted_at = $2
FROM coupons c
WHERE c.id = u.coupon_id
  AND u.order_id = $1 AND u.credit_amount > 0 AND u.credit_granted_at IS NULL AND u.reversed_at IS NULL
RETURNING u.id, u.coupon_id, c.code, u.user_id, u.credit_amount, u.credit_granted_at
`

type GrantPendingCouponCreditParams struct {
	OrderID pgtype.UUID
	Now     time.Time
}

// OrderCouponUsage is a usage row claimed by settlement or reversal.
type OrderCouponUsage struct {
	ID              uuid.UUID
	CouponID        uuid.UUID
	Code            string
	UserID          uuid.UUID
	CreditAmount    int64
	CreditGrantedAt pgtype.Timestamptz
}

func (q *Queries) GrantPendingCouponCredit(ctx context.Context, arg GrantPendingCouponCreditParams) ([]OrderCouponUsage, error) {
	return q.couponUsages(ctx, grantPendingCouponCredit, arg.OrderID, arg.Now)
}

const reverseCouponUsages = `-- name: ReverseCouponUsages :many
UPDATE coupon_usages u
SET reversed_at = $2
FROM coupons c
WHERE c.id = u.coupon_id
  AND u.order_id = $1 AND u.reversed_at IS NULL
RETURNING u.id, u.coupon_id, c.code, u.user_id, u.credit_amount, u.credit_granted_at
`

type ReverseCouponUsagesParams struct {
	OrderID pgtype.UUID
	Now     time.Time
}

func (q *Queries) ReverseCouponUsages(ctx context.Context, arg ReverseCouponUsagesParams) ([]OrderCouponUsage, error) {
	return q.couponUsages(ctx, reverseCouponUsages, arg.OrderID, arg.Now)
}

func (q *Queries) couponUsages(ctx context.Context, query string, args ...interface{}) ([]OrderCouponUsage, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderCouponUsage
	for rows.Next() {
		var i OrderCouponUsage
		if err := rows.Scan(
			&i.ID,
			&i.CouponID,
			&i.Code,
			&i.UserID,
			&i.CreditAmount,
			&i.CreditGrantedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Hands a use back to the coupon. No row means the counter was already zero.
const releaseCouponUsage = `-- name: ReleaseCouponUsage :one
UPDATE coupons
SET used_count = used_count - 1
WHERE id = $1 AND used_count > 0
RETURNING used_count
`

func (q *Queries) ReleaseCouponUsage(ctx context.Context, id uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, releaseCouponUsage, id)
	var usedCount int32
	err := row.Scan(&usedCount)
	return usedCount, err
}
