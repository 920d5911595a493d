package repository

import (
	"context"

	"github.com/google/uuid"
)

const getProduct = `-- name: GetProduct :one
SELECT id, name, slug, price_cents, stock, is_active, created_at, updated_at
FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.PriceCents,
		&i.Stock,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// The WHERE clause is the compare half of compare-and-decrement: concurrent
// reservations on the last unit serialise on the row lock and the loser sees
// no row.
const reserveStock = `-- name: ReserveStock :one
UPDATE products
SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND is_active AND stock >= $2
RETURNING stock
`

type ReserveStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) ReserveStock(ctx context.Context, arg ReserveStockParams) (int32, error) {
	row := q.db.QueryRow(ctx, reserveStock, arg.ID, arg.Quantity)
	var stock int32
	err := row.Scan(&stock)
	return stock, err
}

const releaseStock = `-- name: ReleaseStock :one
UPDATE products
SET stock = stock + $2, updated_at = now()
WHERE id = $1
RETURNING stock
`

type ReleaseStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) ReleaseStock(ctx context.Context, arg ReleaseStockParams) (int32, error) {
	row := q.db.QueryRow(ctx, releaseStock, arg.ID, arg.Quantity)
	var stock int32
	err := row.Scan(&stock)
	return stock, err
}
