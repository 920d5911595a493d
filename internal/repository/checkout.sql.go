package repository

import (
	"context"

	"github.com/google/uuid"
)

const checkoutAttemptColumns = `token, user_id, cart_id, cart_version, order_id, created_at, completed_at`

func scanCheckoutAttempt(row interface{ Scan(...any) error }) (CheckoutAttempt, error) {
	var i CheckoutAttempt
	err := row.Scan(
		&i.Token,
		&i.UserID,
		&i.CartID,
		&i.CartVersion,
		&i.OrderID,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createCheckoutAttempt = `-- name: CreateCheckoutAttempt :one
INSERT INTO checkout_attempts (token, user_id, cart_id, cart_version)
VALUES ($1, $2, $3, $4)
RETURNING ` + checkoutAttemptColumns + `
`

type CreateCheckoutAttemptParams struct {
	Token       string
	UserID      uuid.UUID
	CartID      uuid.UUID
	CartVersion int64
}

func (q *Queries) CreateCheckoutAttempt(ctx context.Context, arg CreateCheckoutAttemptParams) (CheckoutAttempt, error) {
	return scanCheckoutAttempt(q.db.QueryRow(ctx, createCheckoutAttempt,
		arg.Token,
		arg.UserID,
		arg.CartID,
		arg.CartVersion,
	))
}

const getCheckoutAttempt = `-- name: GetCheckoutAttempt :one
SELECT ` + checkoutAttemptColumns + ` FROM checkout_attempts WHERE token = $1
`

func (q *Queries) GetCheckoutAttempt(ctx context.Context, token string) (CheckoutAttempt, error) {
	return scanCheckoutAttempt(q.db.QueryRow(ctx, getCheckoutAttempt, token))
}

const lockCheckoutAttempt = `-- name: LockCheckoutAttempt :one
SELECT ` + checkoutAttemptColumns + ` FROM checkout_attempts WHERE token = $1 FOR UPDATE
`

func (q *Queries) LockCheckoutAttempt(ctx context.Context, token string) (CheckoutAttempt, error) {
	return scanCheckoutAttempt(q.db.QueryRow(ctx, lockCheckoutAttempt, token))
}

const completeCheckoutAttempt = `-- name: CompleteCheckoutAttempt :exec
UPDATE checkout_attempts
SET order_id = $2, completed_at = now()
WHERE token = $1 AND completed_at IS NULL
`

type CompleteCheckoutAttemptParams struct {
	Token   string
	OrderID uuid.UUID
}

func (q *Queries) CompleteCheckoutAttempt(ctx context.Context, arg CompleteCheckoutAttemptParams) error {
	_, err := q.db.Exec(ctx, completeCheckoutAttempt, arg.Token, arg.OrderID)
	return err
}
