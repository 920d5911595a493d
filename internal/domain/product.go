package domain

import (
	"context"

	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
)

var ErrProductNotFound = &Error{Code: ENOTFOUND, Message: "Product not found"}

// StockLedger owns per-product available quantity.
type StockLedger interface {
	// Reserve atomically decrements stock by qty in its own transaction.
	// Fails with ErrInsufficientStock if stock is below qty at write time.
	Reserve(ctx context.Context, productID uuid.UUID, qty int) (int, error)

	// Release gives qty units back to stock in its own transaction.
	Release(ctx context.Context, productID uuid.UUID, qty int) (int, error)

	// ReserveTx and ReleaseTx run inside a caller-owned transaction.
	ReserveTx(ctx context.Context, q repository.Querier, productID uuid.UUID, qty int) (int, error)
	ReleaseTx(ctx context.Context, q repository.Querier, productID uuid.UUID, qty int) (int, error)

	// Available returns the current stock without reserving anything.
	// Inactive products report zero.
	Available(ctx context.Context, productID uuid.UUID) (int, error)
}
