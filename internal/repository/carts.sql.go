package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const cartColumns = `id, user_id, guest_token, version, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (Cart, error) {
	var i Cart
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.GuestToken,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getCartByID = `-- name: GetCartByID :one
SELECT ` + cartColumns + ` FROM carts WHERE id = $1
`

func (q *Queries) GetCartByID(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByID, id))
}

const getCartByUserID = `-- name: GetCartByUserID :one
SELECT ` + cartColumns + ` FROM carts WHERE user_id = $1
`

func (q *Queries) GetCartByUserID(ctx context.Context, userID uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByUserID, userID))
}

const getCartByGuestToken = `-- name: GetCartByGuestToken :one
SELECT ` + cartColumns + ` FROM carts WHERE guest_token = $1
`

func (q *Queries) GetCartByGuestToken(ctx context.Context, guestToken string) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, getCartByGuestToken, guestToken))
}

const lockCart = `-- name: LockCart :one
SELECT ` + cartColumns + ` FROM carts WHERE id = $1 FOR UPDATE
`

// LockCart reads the cart row and holds its lock until the transaction ends.
func (q *Queries) LockCart(ctx context.Context, id uuid.UUID) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, lockCart, id))
}

const createCart = `-- name: CreateCart :one
INSERT INTO carts (user_id, guest_token)
VALUES ($1, $2)
RETURNING ` + cartColumns + `
`

type CreateCartParams struct {
	UserID     pgtype.UUID
	GuestToken pgtype.Text
}

func (q *Queries) CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, createCart, arg.UserID, arg.GuestToken))
}

const touchCart = `-- name: TouchCart :one
UPDATE carts
SET version = version + 1, updated_at = now()
WHERE id = $1
RETURNING version
`

func (q *Queries) TouchCart(ctx context.Context, id uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, touchCart, id)
	var version int64
	err := row.Scan(&version)
	return version, err
}

const deleteCart = `-- name: DeleteCart :exec
DELETE FROM carts WHERE id = $1
`

func (q *Queries) DeleteCart(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteCart, id)
	return err
}

const deleteStaleGuestCarts = `-- name: DeleteStaleGuestCarts :execrows
DELETE FROM carts
WHERE user_id IS NULL AND updated_at < $1
`

func (q *Queries) DeleteStaleGuestCarts(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, deleteStaleGuestCarts, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listCartItems = `-- name: ListCartItems :many
SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.unit_price_cents, ci.created_at,
       p.name AS product_name, p.stock AS product_stock, p.is_active AS product_active
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at, ci.id
`

type ListCartItemsRow struct {
	ID             uuid.UUID
	CartID         uuid.UUID
	ProductID      uuid.UUID
	Quantity       int32
	UnitPriceCents int64
	CreatedAt      time.Time
	ProductName    string
	ProductStock   int32
	ProductActive  bool
}

func (q *Queries) ListCartItems(ctx context.Context, cartID uuid.UUID) ([]ListCartItemsRow, error) {
	rows, err := q.db.Query(ctx, listCartItems, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListCartItemsRow
	for rows.Next() {
		var i ListCartItemsRow
		if err := rows.Scan(
			&i.ID,
			&i.CartID,
			&i.ProductID,
			&i.Quantity,
			&i.UnitPriceCents,
			&i.CreatedAt,
			&i.ProductName,
			&i.ProductStock,
			&i.ProductActive,
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

const cartItemColumns = `id, cart_id, product_id, quantity, unit_price_cents, created_at`

func scanCartItem(row interface{ Scan(...any) error }) (CartItem, error) {
	var i CartItem
	err := row.Scan(
		&i.ID,
		&i.CartID,
		&i.ProductID,
		&i.Quantity,
		&i.UnitPriceCents,
		&i.CreatedAt,
	)
	return i, err
}

const getCartItem = `-- name: GetCartItem :one
SELECT ` + cartItemColumns + ` FROM cart_items WHERE id = $1
`

func (q *Queries) GetCartItem(ctx context.Context, id uuid.UUID) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, getCartItem, id))
}

const getCartItemByProduct = `-- name: GetCartItemByProduct :one
SELECT ` + cartItemColumns + ` FROM cart_items WHERE cart_id = $1 AND product_id = $2
`

type GetCartItemByProductParams struct {
	CartID    uuid.UUID
	ProductID uuid.UUID
}

func (q *Queries) GetCartItemByProduct(ctx context.Context, arg GetCartItemByProductParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, getCartItemByProduct, arg.CartID, arg.ProductID))
}

const insertCartItem = `-- name: InsertCartItem :one
INSERT INTO cart_items (cart_id, product_id, quantity, unit_price_cents)
VALUES ($1, $2, $3, $4)
RETURNING ` + cartItemColumns + `
`

type InsertCartItemParams struct {
	CartID         uuid.UUID
	ProductID      uuid.UUID
	Quantity       int32
	UnitPriceCents int64
}

func (q *Queries) InsertCartItem(ctx context.Context, arg InsertCartItemParams) (CartItem, error) {
	return scanCartItem(q.db.QueryRow(ctx, insertCartItem,
		arg.CartID,
		arg.ProductID,
		arg.Quantity,
		arg.UnitPriceCents,
	))
}

const setCartItemQuantity = `-- name: SetCartItemQuantity :exec
UPDATE cart_items SET quantity = $2 WHERE id = $1
`

type SetCartItemQuantityParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) SetCartItemQuantity(ctx context.Context, arg SetCartItemQuantityParams) error {
	_, err := q.db.Exec(ctx, setCartItemQuantity, arg.ID, arg.Quantity)
	return err
}

const deleteCartItem = `-- name: DeleteCartItem :exec
DELETE FROM cart_items WHERE id = $1
`

func (q *Queries) DeleteCartItem(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteCartItem, id)
	return err
}

const clearCartItems = `-- name: ClearCartItems :exec
DELETE FROM cart_items WHERE cart_id = $1
`

func (q *Queries) ClearCartItems(ctx context.Context, cartID uuid.UUID) error {
	_, err := q.db.Exec(ctx, clearCartItems, cartID)
	return err
}

const assignCartToUser = `-- name: AssignCartToUser :one
UPDATE carts
SET user_id = $2, guest_token = NULL, version = version + 1, updated_at = now()
WHERE id = $1
RETURNING ` + cartColumns + `
`

type AssignCartToUserParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// AssignCartToUser turns a guest cart into the user's cart when the user has none.
func (q *Queries) AssignCartToUser(ctx context.Context, arg AssignCartToUserParams) (Cart, error) {
	return scanCart(q.db.QueryRow(ctx, assignCartToUser, arg.ID, arg.UserID))
}
