package repository

import (
	"context"

	"github.com/google/uuid"
)

const getPaymentMethod = `-- name: GetPaymentMethod :one
SELECT id, name, kind, provider, is_active, sort_order, created_at
FROM payment_methods
WHERE id = $1
`

func (q *Queries) GetPaymentMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error) {
	row := q.db.QueryRow(ctx, getPaymentMethod, id)
	var i PaymentMethod
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Kind,
		&i.Provider,
		&i.IsActive,
		&i.SortOrder,
		&i.CreatedAt,
	)
	return i, err
}

const listActivePaymentMethods = `-- name: ListActivePaymentMethods :many
SELECT id, name, kind, provider, is_active, sort_order, created_at
FROM payment_methods
WHERE is_active
ORDER BY sort_order, name
`

func (q *Queries) ListActivePaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := q.db.Query(ctx, listActivePaymentMethods)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentMethod
	for rows.Next() {
		var i PaymentMethod
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Kind,
			&i.Provider,
			&i.IsActive,
			&i.SortOrder,
			&i.CreatedAt,
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
