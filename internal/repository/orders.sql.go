package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, user_id, status, payment_method_id, coupon_id,
       subtotal_cents, discount_cents, total_cents, credit_paid_cents, currency,
       provider_session_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.UserID,
		&i.Status,
		&i.PaymentMethodID,
		&i.CouponID,
		&i.SubtotalCents,
		&i.DiscountCents,
		&i.TotalCents,
		&i.CreditPaidCents,
		&i.Currency,
		&i.ProviderSessionID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    id, order_number, user_id, status, payment_method_id, coupon_id,
    subtotal_cents, discount_cents, total_cents, credit_paid_cents, currency
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns + `
`

type CreateOrderParams struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          uuid.UUID
	Status          string
	PaymentMethodID uuid.UUID
	CouponID        pgtype.UUID
	SubtotalCents   int64
	DiscountCents   int64
	TotalCents      int64
	CreditPaidCents int64
	Currency        string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.OrderNumber,
		arg.UserID,
		arg.Status,
		arg.PaymentMethodID,
		arg.CouponID,
		arg.SubtotalCents,
		arg.DiscountCents,
		arg.TotalCents,
		arg.CreditPaidCents,
		arg.Currency,
	))
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents, total_price_cents)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, product_id, product_name, quantity, unit_price_cents, total_price_cents
`

type CreateOrderItemParams struct {
	OrderID         uuid.UUID
	ProductID       uuid.UUID
	ProductName     string
	Quantity        int32
	UnitPriceCents  int64
	TotalPriceCents int64
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ProductName,
		arg.Quantity,
		arg.UnitPriceCents,
		arg.TotalPriceCents,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.ProductName,
		&i.Quantity,
		&i.UnitPriceCents,
		&i.TotalPriceCents,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const lockOrder = `-- name: LockOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE
`

func (q *Queries) LockOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, lockOrder, id))
}

const listOrderItems = `-- name: ListOrderItems :many
SELECT id, order_id, product_id, product_name, quantity, unit_price_cents, total_price_cents
FROM order_items
WHERE order_id = $1
ORDER BY product_id
`

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ProductID,
			&i.ProductName,
			&i.Quantity,
			&i.UnitPriceCents,
			&i.TotalPriceCents,
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

const listOrdersByUser = `-- name: ListOrdersByUser :many
SELECT ` + orderColumns + ` FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListOrdersByUserParams struct {
	UserID uuid.UUID
	Limit  int32
}

func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns + `
`

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

const setOrderProviderSession = `-- name: SetOrderProviderSession :exec
UPDATE orders
SET provider_session_id = $2, updated_at = now()
WHERE id = $1
`

type SetOrderProviderSessionParams struct {
	ID                uuid.UUID
	ProviderSessionID string
}

func (q *Queries) SetOrderProviderSession(ctx context.Context, arg SetOrderProviderSessionParams) error {
	_, err := q.db.Exec(ctx, setOrderProviderSession, arg.ID, arg.ProviderSessionID)
	return err
}

const listStalePendingOrders = `-- name: ListStalePendingOrders :many
SELECT id FROM orders
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at
LIMIT $2
`

type ListStalePendingOrdersParams struct {
	Before time.Time
	Limit  int32
}

func (q *Queries) ListStalePendingOrders(ctx context.Context, arg ListStalePendingOrdersParams) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, listStalePendingOrders, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
