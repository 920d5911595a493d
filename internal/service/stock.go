package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

type stockLedger struct {
	store  repository.Store
	logger *slog.Logger
}

// NewStockLedger creates the stock ledger.
func NewStockLedger(store repository.Store, logger *slog.Logger) domain.StockLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &stockLedger{
		store:  store,
		logger: logger.With("service", "stock"),
	}
}

func (s *stockLedger) Reserve(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	var remaining int
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		remaining, err = s.ReserveTx(ctx, q, productID, qty)
		return err
	})
	return remaining, passThrough(err, "stock.reserve", "failed to reserve stock")
}

func (s *stockLedger) Release(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	var remaining int
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		remaining, err = s.ReleaseTx(ctx, q, productID, qty)
		return err
	})
	return remaining, passThrough(err, "stock.release", "failed to release stock")
}

// ReserveTx decrements stock with a single conditional UPDATE. When no row
// matches, the product is re-read only to build the error message.
func (s *stockLedger) ReserveTx(ctx context.Context, q repository.Querier, productID uuid.UUID, qty int) (int, error) {
	const op = "stock.reserve"
	if qty < 1 || qty > math.MaxInt32 {
		return 0, domain.ErrInvalidQuantity
	}

	stock, err := q.ReserveStock(ctx, repository.ReserveStockParams{ID: productID, Quantity: int32(qty)})
	if err == nil {
		if telemetry.Business != nil {
			telemetry.Business.StockReserved.Add(float64(qty))
		}
		return int(stock), nil
	}
	if !repository.IsNotFound(err) {
		return 0, domain.Internal(err, op, "failed to reserve stock")
	}

	product, err := q.GetProduct(ctx, productID)
	if repository.IsNotFound(err) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, domain.Internal(err, op, "failed to load product")
	}

	if telemetry.Business != nil {
		telemetry.Business.StockReservationFailures.Inc()
	}
	s.logger.Info("stock reservation refused",
		"product_id", productID,
		"requested", qty,
		"stock", product.Stock,
		"active", product.IsActive,
	)

	if !product.IsActive {
		return 0, domain.ErrInsufficientStock.WithDetail(op, fmt.Sprintf("%s is no longer available", product.Name))
	}
	return 0, domain.ErrInsufficientStock.WithDetail(op, fmt.Sprintf("Only %d of %s left", product.Stock, product.Name))
}

func (s *stockLedger) ReleaseTx(ctx context.Context, q repository.Querier, productID uuid.UUID, qty int) (int, error) {
	const op = "stock.release"
	if qty < 1 || qty > math.MaxInt32 {
		return 0, domain.ErrInvalidQuantity
	}

	stock, err := q.ReleaseStock(ctx, repository.ReleaseStockParams{ID: productID, Quantity: int32(qty)})
	if repository.IsNotFound(err) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, domain.Internal(err, op, "failed to release stock")
	}

	if telemetry.Business != nil {
		telemetry.Business.StockReleased.Add(float64(qty))
	}
	return int(stock), nil
}

func (s *stockLedger) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if repository.IsNotFound(err) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, domain.Internal(err, "stock.available", "failed to load product")
	}
	if !product.IsActive {
		return 0, nil
	}
	return int(product.Stock), nil
}
