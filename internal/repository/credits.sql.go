package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getUser = `-- name: GetUser :one
SELECT id, email, credits, created_at, updated_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Credits,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// Applies a signed delta to the cached balance only if the result stays
// non-negative. No row means the user is missing or the balance is short.
const applyCreditDelta = `-- name: ApplyCreditDelta :one
UPDATE users
SET credits = credits + $2, updated_at = now()
WHERE id = $1 AND credits + $2 >= 0
RETURNING credits
`

type ApplyCreditDeltaParams struct {
	ID    uuid.UUID
	Delta int64
}

func (q *Queries) ApplyCreditDelta(ctx context.Context, arg ApplyCreditDeltaParams) (int64, error) {
	row := q.db.QueryRow(ctx, applyCreditDelta, arg.ID, arg.Delta)
	var credits int64
	err := row.Scan(&credits)
	return credits, err
}

const insertCreditTransaction = `-- name: InsertCreditTransaction :one
INSERT INTO credit_transactions (user_id, type, amount, note, order_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, type, amount, note, order_id, created_at, seq
`

type InsertCreditTransactionParams struct {
	UserID  uuid.UUID
	Type    string
	Amount  int64
	Note    string
	OrderID pgtype.UUID
}

func (q *Queries) InsertCreditTransaction(ctx context.Context, arg InsertCreditTransactionParams) (CreditTransaction, error) {
	row := q.db.QueryRow(ctx, insertCreditTransaction,
		arg.UserID,
		arg.Type,
		arg.Amount,
		arg.Note,
		arg.OrderID,
	)
	var i CreditTransaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Amount,
		&i.Note,
		&i.OrderID,
		&i.CreatedAt,
		&i.Seq,
	)
	return i, err
}

const listCreditTransactions = `-- name: ListCreditTransactions :many
SELECT id, user_id, type, amount, note, order_id, created_at, seq
FROM credit_transactions
WHERE user_id = $1
ORDER BY seq DESC
LIMIT $2
`

type ListCreditTransactionsParams struct {
	UserID uuid.UUID
	Limit  int32
}

func (q *Queries) ListCreditTransactions(ctx context.Context, arg ListCreditTransactionsParams) ([]CreditTransaction, error) {
	rows, err := q.db.Query(ctx, listCreditTransactions, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CreditTransaction
	for rows.Next() {
		var i CreditTransaction
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Type,
			&i.Amount,
			&i.Note,
			&i.OrderID,
			&i.CreatedAt,
			&i.Seq,
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

const sumCreditTransactions = `-- name: SumCreditTransactions :one
SELECT COALESCE(SUM(amount), 0)::BIGINT
FROM credit_transactions
WHERE user_id = $1
`

func (q *Queries) SumCreditTransactions(ctx context.Context, userID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, sumCreditTransactions, userID)
	var sum int64
	err := row.Scan(&sum)
	return sum, err
}
