package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

const (
	defaultOrderListLimit = 20
	maxOrderListLimit     = 100
)

type orderService struct {
	store     repository.Store
	stock     domain.StockLedger
	credits   domain.CreditLedger
	coupons   domain.CouponLedger
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates the order lifecycle service. Cancellation gives
// stock back through stock, refunds through credits and returns coupon uses
// through coupons. Settling a payment pays out deferred coupon credit.
func NewOrderService(store repository.Store, stock domain.StockLedger, credits domain.CreditLedger, coupons domain.CouponLedger, publisher events.Publisher, logger *slog.Logger) domain.OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &orderService{
		store:     store,
		stock:     stock,
		credits:   credits,
		coupons:   coupons,
		publisher: publisher,
		logger:    logger.With("service", "order"),
		now:       time.Now,
	}
}

func (s *orderService) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	const op = "order.get"

	row, err := s.store.GetOrder(ctx, orderID)
	if repository.IsNotFound(err) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order")
	}
	items, err := s.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order items")
	}
	return orderFromRow(row, items), nil
}

func (s *orderService) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListForUser returns the newest orders first, without items.
func (s *orderService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultOrderListLimit
	}
	limit = min(limit, maxOrderListLimit)

	rows, err := s.store.ListOrdersByUser(ctx, repository.ListOrdersByUserParams{UserID: userID, Limit: int32(limit)})
	if err != nil {
		return nil, domain.Internal(err, "order.list", "failed to list orders")
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, *orderFromRow(row, nil))
	}
	return out, nil
}

// Transition moves the order under a row lock. Moving to the current status
// returns the order unchanged. Cancelling releases every line's stock,
// refunds credit paid and reverses coupon use in the same transaction as the
// status change. Moving to processing pays out deferred coupon credit.
func (s *orderService) Transition(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus, actor domain.Actor) (*domain.Order, error) {
	const op = "order.transition"
	if !to.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	var (
		before  repository.Order
		changed bool
		ledger  []*domain.CreditTransaction
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		before, err = q.LockOrder(ctx, orderID)
		if repository.IsNotFound(err) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		from := domain.OrderStatus(before.Status)
		if from == to {
			return nil
		}
		if !from.CanTransitionTo(to) {
			return domain.ErrInvalidTransition.WithDetail(op, fmt.Sprintf(
				"Order %s cannot move from %s to %s", before.OrderNumber, from, to,
			))
		}

		switch to {
		case domain.OrderCancelled:
			if ledger, err = s.unwind(ctx, q, before); err != nil {
				return err
			}
		case domain.OrderProcessing:
			if ledger, err = s.coupons.SettleTx(ctx, q, before.ID); err != nil {
				return err
			}
		}

		if _, err := q.UpdateOrderStatus(ctx, repository.UpdateOrderStatusParams{ID: orderID, Status: string(to)}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, passThrough(err, op, "failed to update order status")
	}

	if changed {
		s.afterTransition(ctx, before, to, actor, ledger)
	}
	return s.Get(ctx, orderID)
}

// unwind gives back what checkout took: reserved units, credit paid and
// coupon use. The refund lands before coupon credit is taken back, so credit
// paid for the order can cover the reversal.
func (s *orderService) unwind(ctx context.Context, q repository.Querier, order repository.Order) ([]*domain.CreditTransaction, error) {
	items, err := q.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	// ListOrderItems is ordered by product id, matching the reservation order.
	for _, item := range items {
		if _, err := s.stock.ReleaseTx(ctx, q, item.ProductID, int(item.Quantity)); err != nil {
			return nil, err
		}
	}

	var ledger []*domain.CreditTransaction
	if order.CreditPaidCents > 0 {
		refund, err := s.credits.CreditTx(ctx, q, order.UserID, order.CreditPaidCents, domain.CreditEntry{
			Type:    domain.CreditRefund,
			Note:    "Refund for order " + order.OrderNumber,
			OrderID: order.ID,
		})
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, refund)
	}

	reversed, err := s.coupons.ReverseTx(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	return append(ledger, reversed...), nil
}

func (s *orderService) afterTransition(ctx context.Context, before repository.Order, to domain.OrderStatus, actor domain.Actor, ledger []*domain.CreditTransaction) {
	if telemetry.Business != nil {
		telemetry.Business.OrderTransitions.WithLabelValues(before.Status, string(to), actor.Kind).Inc()
	}
	s.logger.Info("order status changed",
		"order_id", before.ID,
		"order_number", before.OrderNumber,
		"from", before.Status,
		"to", to,
		"actor", actor.Kind,
		"actor_id", actor.ID,
		"refunded", before.CreditPaidCents > 0 && to == domain.OrderCancelled,
		"credit_transactions", len(ledger),
	)

	err := s.publisher.Publish(ctx, events.SubjectOrderStatusChanged, events.OrderStatusChanged{
		OrderID:     before.ID,
		OrderNumber: before.OrderNumber,
		UserID:      before.UserID,
		From:        before.Status,
		To:          string(to),
		Actor:       actor.Kind,
		ActorID:     actor.ID,
	})
	if err != nil {
		s.logger.Warn("failed to publish status change", "order_id", before.ID, "error", err)
	}
	for _, tx := range ledger {
		publishCredit(ctx, s.publisher, s.logger, tx)
	}
}

// HandlePaymentEvent applies a provider callback. Provider retries and late
// events for orders that already reached a final state are acknowledged
// without error so the provider stops redelivering; a payment that arrives
// for a cancelled order is logged for manual refund.
func (s *orderService) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) (*domain.Order, error) {
	const op = "order.payment_event"

	var to domain.OrderStatus
	switch event.Outcome {
	case domain.PaymentPaid:
		to = domain.OrderProcessing
	case domain.PaymentFailed, domain.PaymentExpired:
		to = domain.OrderCancelled
	default:
		return nil, ErrUnknownPaymentOutcome
	}

	order, err := s.Get(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}
	if event.SessionID != "" && order.ProviderSessionID != "" && event.SessionID != order.ProviderSessionID {
		s.logger.Warn("payment event for a different session",
			"order_id", order.ID,
			"event_id", event.EventID,
			"event_session", event.SessionID,
			"order_session", order.ProviderSessionID,
		)
		return nil, ErrSessionMismatch
	}

	updated, err := s.Transition(ctx, order.ID, to, domain.Actor{Kind: domain.ActorProvider, ID: event.EventID})
	if errors.Is(err, domain.ErrInvalidTransition) {
		current, gerr := s.Get(ctx, order.ID)
		if gerr != nil {
			return nil, gerr
		}
		level := slog.LevelInfo
		if event.Outcome == domain.PaymentPaid && current.Status == domain.OrderCancelled {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "payment event ignored for settled order",
			"op", op,
			"order_id", current.ID,
			"order_number", current.OrderNumber,
			"status", current.Status,
			"outcome", event.Outcome,
			"event_id", event.EventID,
		)
		return current, nil
	}
	return updated, err
}

// ExpireStalePending cancels pending orders whose payment never completed.
// An order paid between listing and cancelling is skipped.
func (s *orderService) ExpireStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = maxOrderListLimit
	}

	ids, err := s.store.ListStalePendingOrders(ctx, repository.ListStalePendingOrdersParams{
		Before: s.now().Add(-olderThan),
		Limit:  int32(limit),
	})
	if err != nil {
		return 0, domain.Internal(err, "order.expire", "failed to list stale orders")
	}

	actor := domain.Actor{Kind: domain.ActorSystem, ID: "pending-expiry"}
	var (
		cancelled int
		errs      []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		order, err := s.Transition(ctx, id, domain.OrderCancelled, actor)
		if errors.Is(err, domain.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to expire order", "order_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if order.Status == domain.OrderCancelled {
			cancelled++
		}
	}
	return cancelled, errors.Join(errs...)
}

func orderFromRow(row repository.Order, items []repository.OrderItem) *domain.Order {
	order := &domain.Order{
		ID:                row.ID,
		OrderNumber:       row.OrderNumber,
		UserID:            row.UserID,
		Status:            domain.OrderStatus(row.Status),
		PaymentMethodID:   row.PaymentMethodID,
		CouponID:          repository.UUIDFrom(row.CouponID),
		SubtotalCents:     row.SubtotalCents,
		DiscountCents:     row.DiscountCents,
		TotalCents:        row.TotalCents,
		CreditPaidCents:   row.CreditPaidCents,
		Currency:          row.Currency,
		ProviderSessionID: row.ProviderSessionID,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        int(item.Quantity),
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
		})
	}
	return order
}
