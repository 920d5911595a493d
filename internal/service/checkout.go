package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/licensa/internal/billing"
	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

// CheckoutDeps wires the checkout orchestrator to the ledgers it drives.
// Provider may be nil, in which case provider payment methods are unavailable.
type CheckoutDeps struct {
	Store     repository.Store
	Stock     domain.StockLedger
	Credits   domain.CreditLedger
	Coupons   domain.CouponLedger
	Orders    domain.OrderService
	Provider  billing.Provider
	Publisher events.Publisher
	Logger    *slog.Logger

	// Currency is the ISO 4217 code stamped on every order.
	Currency   string
	SuccessURL string
	CancelURL  string
}

type checkoutService struct {
	store      repository.Store
	stock      domain.StockLedger
	credits    domain.CreditLedger
	coupons    domain.CouponLedger
	orders     domain.OrderService
	provider   billing.Provider
	publisher  events.Publisher
	logger     *slog.Logger
	currency   string
	successURL string
	cancelURL  string
	now        func() time.Time
}

// NewCheckoutService creates the checkout orchestrator.
func NewCheckoutService(deps CheckoutDeps) domain.CheckoutService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	currency := strings.ToLower(deps.Currency)
	if currency == "" {
		currency = "usd"
	}
	return &checkoutService{
		store:      deps.Store,
		stock:      deps.Stock,
		credits:    deps.Credits,
		coupons:    deps.Coupons,
		orders:     deps.Orders,
		provider:   deps.Provider,
		publisher:  publisher,
		logger:     logger.With("service", "checkout"),
		currency:   currency,
		successURL: deps.SuccessURL,
		cancelURL:  deps.CancelURL,
		now:        time.Now,
	}
}

// checkoutPlan is everything validation resolved, carried into the commit.
type checkoutPlan struct {
	userID   uuid.UUID
	token    string
	attempt  *repository.CheckoutAttempt
	cart     repository.Cart
	items    []repository.ListCartItemsRow
	method   repository.PaymentMethod
	coupon   *domain.Coupon
	subtotal int64
	discount int64
	total    int64
}

func (p *checkoutPlan) paysWithCredit() bool {
	return domain.PaymentMethodKind(p.method.Kind) == domain.PaymentKindCredit
}

// BeginAttempt issues an idempotency token bound to the user's cart as it is now.
func (s *checkoutService) BeginAttempt(ctx context.Context, userID uuid.UUID) (*domain.CheckoutAttempt, error) {
	const op = "checkout.begin"
	if userID == uuid.Nil {
		return nil, domain.Unauthorized(op, "Sign in to check out")
	}

	cart, err := s.store.GetCartByUserID(ctx, userID)
	if repository.IsNotFound(err) {
		return nil, domain.ErrEmptyCart.WithDetail(op, "")
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load cart")
	}
	items, err := s.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load cart items")
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart.WithDetail(op, "")
	}

	row, err := s.store.CreateCheckoutAttempt(ctx, repository.CreateCheckoutAttemptParams{
		Token:       uuid.NewString(),
		UserID:      userID,
		CartID:      cart.ID,
		CartVersion: cart.Version,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create checkout attempt")
	}
	return &domain.CheckoutAttempt{
		Token:       row.Token,
		CartID:      row.CartID,
		CartVersion: row.CartVersion,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// Checkout turns the cart into an order. Stock, credit and coupon usage
// change in one transaction together with the order rows, so a rejection at
// any step leaves all three ledgers as they were.
func (s *checkoutService) Checkout(ctx context.Context, params domain.CheckoutParams) (*domain.CheckoutResult, error) {
	const op = "checkout"
	start := s.now()
	state := domain.CheckoutValidating

	plan, replay, err := s.validate(ctx, params)
	if err != nil {
		return nil, s.reject(ctx, op, state, params, start, err)
	}
	if replay != nil {
		return replay, nil
	}

	kind := plan.method.Kind
	if telemetry.Business != nil {
		telemetry.Business.CheckoutStarted.WithLabelValues(kind).Inc()
	}

	order, replayedID, err := s.commit(ctx, plan, &state)
	if err != nil {
		return nil, s.reject(ctx, op, state, params, start, err)
	}
	if replayedID != uuid.Nil {
		return s.replay(ctx, replayedID)
	}

	result := &domain.CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      domain.OrderStatus(order.Status),
		TotalCents:  order.TotalCents,
	}
	if result.Status == domain.OrderPending {
		s.startPayment(ctx, plan, order, result)
	}

	s.logger.Info("checkout completed",
		"op", op,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", plan.userID,
		"status", result.Status,
		"payment_kind", kind,
		"total", order.TotalCents,
		"credit_paid", order.CreditPaidCents,
		"coupon", couponCode(plan.coupon),
	)
	if telemetry.Business != nil {
		telemetry.Business.CheckoutCompleted.WithLabelValues(kind, string(result.Status)).Inc()
		telemetry.Business.CheckoutDuration.WithLabelValues("completed").Observe(s.now().Sub(start).Seconds())
		telemetry.Business.OrdersCreated.WithLabelValues(order.Status).Inc()
		telemetry.Business.OrderValue.WithLabelValues(kind).Observe(float64(order.TotalCents))
	}

	err = s.publisher.Publish(ctx, events.SubjectOrderCreated, events.OrderCreated{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Status:          order.Status,
		PaymentKind:     kind,
		SubtotalCents:   order.SubtotalCents,
		DiscountCents:   order.DiscountCents,
		TotalCents:      order.TotalCents,
		CreditPaidCents: order.CreditPaidCents,
		Currency:        order.Currency,
		CouponCode:      couponCode(plan.coupon),
	})
	if err != nil {
		s.logger.Warn("failed to publish order created", "order_id", order.ID, "error", err)
	}
	return result, nil
}

// validate runs every read-only check. It returns a result instead of a plan
// when the attempt token already completed.
func (s *checkoutService) validate(ctx context.Context, params domain.CheckoutParams) (*checkoutPlan, *domain.CheckoutResult, error) {
	const op = "checkout.validate"
	if params.UserID == uuid.Nil {
		return nil, nil, domain.Unauthorized(op, "Sign in to check out")
	}
	plan := &checkoutPlan{userID: params.UserID, token: params.AttemptToken}

	if plan.token != "" {
		attempt, err := s.store.GetCheckoutAttempt(ctx, plan.token)
		if repository.IsNotFound(err) || (err == nil && attempt.UserID != params.UserID) {
			return nil, nil, ErrAttemptNotFound
		}
		if err != nil {
			return nil, nil, domain.Internal(err, op, "failed to load checkout attempt")
		}
		if params.CartID != uuid.Nil && attempt.CartID != params.CartID {
			return nil, nil, ErrAttemptMismatch
		}
		if attempt.CompletedAt.Valid {
			result, err := s.replay(ctx, repository.UUIDFrom(attempt.OrderID))
			return nil, result, err
		}
		plan.attempt = &attempt
		if params.CartID == uuid.Nil {
			params.CartID = attempt.CartID
		}
	}

	var (
		cart repository.Cart
		err  error
	)
	if params.CartID == uuid.Nil {
		cart, err = s.store.GetCartByUserID(ctx, params.UserID)
	} else {
		cart, err = s.store.GetCartByID(ctx, params.CartID)
	}
	if repository.IsNotFound(err) {
		return nil, nil, domain.ErrEmptyCart.WithDetail(op, "")
	}
	if err != nil {
		return nil, nil, domain.Internal(err, op, "failed to load cart")
	}
	if repository.UUIDFrom(cart.UserID) != params.UserID {
		return nil, nil, domain.ErrCartNotFound
	}
	if plan.attempt != nil && plan.attempt.CartVersion != cart.Version {
		return nil, nil, domain.ErrConcurrentModification.WithDetail(op, "")
	}
	plan.cart = cart

	items, err := s.store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, nil, domain.Internal(err, op, "failed to load cart items")
	}
	if len(items) == 0 {
		return nil, nil, domain.ErrEmptyCart.WithDetail(op, "")
	}
	slices.SortFunc(items, func(a, b repository.ListCartItemsRow) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	plan.items = items
	for _, item := range items {
		plan.subtotal += int64(item.Quantity) * item.UnitPriceCents
	}

	method, err := s.store.GetPaymentMethod(ctx, params.PaymentMethodID)
	if repository.IsNotFound(err) || (err == nil && !method.IsActive) {
		return nil, nil, domain.ErrInvalidPaymentMethod.WithDetail(op, "")
	}
	if err != nil {
		return nil, nil, domain.Internal(err, op, "failed to load payment method")
	}
	switch domain.PaymentMethodKind(method.Kind) {
	case domain.PaymentKindCredit:
	case domain.PaymentKindProvider:
		if s.provider == nil {
			return nil, nil, domain.ErrInvalidPaymentMethod.WithDetail(op, method.Name+" is not available")
		}
	default:
		return nil, nil, domain.ErrInvalidPaymentMethod.WithDetail(op, "")
	}
	plan.method = method

	if strings.TrimSpace(params.CouponCode) != "" {
		coupon, err := s.coupons.Check(ctx, params.CouponCode, plan.subtotal)
		if err != nil {
			return nil, nil, err
		}
		plan.coupon = coupon
		plan.discount = coupon.DiscountFor(plan.subtotal)
	}
	plan.total = plan.subtotal - plan.discount

	if plan.paysWithCredit() && plan.total > 0 {
		balance, err := s.credits.Balance(ctx, params.UserID)
		if err != nil {
			return nil, nil, err
		}
		if balance < plan.total {
			return nil, nil, domain.ErrInsufficientCredit.WithDetail(op, fmt.Sprintf(
				"Order total is %s but only %s credit is available",
				domain.FormatMinor(plan.total), domain.FormatMinor(balance),
			))
		}
	}
	return plan, nil, nil
}

// commit reserves, debits, redeems and writes the order in one transaction.
// Lines are reserved in product id order so concurrent checkouts over the
// same products lock rows in the same order.
func (s *checkoutService) commit(ctx context.Context, plan *checkoutPlan, state *domain.CheckoutState) (repository.Order, uuid.UUID, error) {
	const op = "checkout.commit"

	var (
		order    repository.Order
		replayed uuid.UUID
		debit    *domain.CreditTransaction
		grant    *domain.CreditTransaction
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		*state = domain.CheckoutValidating
		if plan.token != "" {
			attempt, err := q.LockCheckoutAttempt(ctx, plan.token)
			if err != nil {
				return err
			}
			if attempt.CompletedAt.Valid {
				replayed = repository.UUIDFrom(attempt.OrderID)
				return nil
			}
		}

		cart, err := q.LockCart(ctx, plan.cart.ID)
		if repository.IsNotFound(err) {
			return domain.ErrConcurrentModification.WithDetail(op, "")
		}
		if err != nil {
			return err
		}
		if cart.Version != plan.cart.Version {
			return domain.ErrConcurrentModification.WithDetail(op, "")
		}

		*state = domain.CheckoutReserving
		for _, item := range plan.items {
			if _, err := s.stock.ReserveTx(ctx, q, item.ProductID, int(item.Quantity)); err != nil {
				return err
			}
		}

		*state = domain.CheckoutCommitting
		status := domain.OrderPending
		var creditPaid int64
		if plan.paysWithCredit() || plan.total == 0 {
			status = domain.OrderProcessing
		}
		if plan.paysWithCredit() {
			creditPaid = plan.total
		}

		orderID := uuid.New()
		order, err = q.CreateOrder(ctx, repository.CreateOrderParams{
			ID:              orderID,
			OrderNumber:     newOrderNumber(s.now(), orderID),
			UserID:          plan.userID,
			Status:          string(status),
			PaymentMethodID: plan.method.ID,
			CouponID:        repository.NullUUID(couponID(plan.coupon)),
			SubtotalCents:   plan.subtotal,
			DiscountCents:   plan.discount,
			TotalCents:      plan.total,
			CreditPaidCents: creditPaid,
			Currency:        s.currency,
		})
		if err != nil {
			return err
		}

		if creditPaid > 0 {
			debit, err = s.credits.DebitTx(ctx, q, plan.userID, creditPaid, domain.CreditEntry{
				Type:    domain.CreditUsage,
				Note:    "Payment for order " + order.OrderNumber,
				OrderID: order.ID,
			})
			if err != nil {
				return err
			}
		}

		if plan.coupon != nil {
			// Coupon credit on an order still waiting for the provider is
			// paid out when the payment settles.
			redemption, err := s.coupons.RedeemTx(ctx, q, plan.coupon, domain.RedeemParams{
				UserID:      plan.userID,
				OrderID:     order.ID,
				OrderAmount: plan.subtotal,
				DeferCredit: status == domain.OrderPending,
			})
			if err != nil {
				return err
			}
			grant = redemption.CreditTransaction
		}

		for _, item := range plan.items {
			_, err := q.CreateOrderItem(ctx, repository.CreateOrderItemParams{
				OrderID:         order.ID,
				ProductID:       item.ProductID,
				ProductName:     item.ProductName,
				Quantity:        item.Quantity,
				UnitPriceCents:  item.UnitPriceCents,
				TotalPriceCents: int64(item.Quantity) * item.UnitPriceCents,
			})
			if err != nil {
				return err
			}
		}

		if err := q.ClearCartItems(ctx, cart.ID); err != nil {
			return err
		}
		if _, err := q.TouchCart(ctx, cart.ID); err != nil {
			return err
		}
		if plan.token != "" {
			return q.CompleteCheckoutAttempt(ctx, repository.CompleteCheckoutAttemptParams{
				Token:   plan.token,
				OrderID: order.ID,
			})
		}
		return nil
	})
	if err != nil {
		return repository.Order{}, uuid.Nil, passThrough(err, op, "failed to place order")
	}

	if replayed == uuid.Nil {
		*state = domain.CheckoutCompleted
		publishCredit(ctx, s.publisher, s.logger, debit)
		publishCredit(ctx, s.publisher, s.logger, grant)
	}
	return order, replayed, nil
}

// startPayment opens a hosted payment for a pending order. No database lock
// is held here. When the provider fails the order is cancelled, which gives
// the reserved stock back.
func (s *checkoutService) startPayment(ctx context.Context, plan *checkoutPlan, order repository.Order, result *domain.CheckoutResult) {
	lines := make([]billing.LineItem, 0, len(plan.items))
	for _, item := range plan.items {
		lines = append(lines, billing.LineItem{
			Name:            item.ProductName,
			UnitAmountCents: item.UnitPriceCents,
			Quantity:        int64(item.Quantity),
		})
	}

	start := s.now()
	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		Currency:      order.Currency,
		LineItems:     lines,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"user_id":      order.UserID.String(),
		},
		IdempotencyKey: "order-" + order.ID.String(),
	})
	if telemetry.Business != nil {
		telemetry.Business.ProviderAPILatency.WithLabelValues("create_checkout_session").Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		s.logger.Error("payment session failed, cancelling order",
			"order_id", order.ID,
			"order_number", order.OrderNumber,
			"error", err,
		)
		cancelled, cerr := s.orders.Transition(ctx, order.ID, domain.OrderCancelled, domain.Actor{Kind: domain.ActorCheckout, ID: "provider-error"})
		if cerr != nil {
			s.logger.Error("failed to cancel order after payment session failure",
				"order_id", order.ID,
				"error", cerr,
			)
			return
		}
		result.Status = cancelled.Status
		return
	}

	err = s.store.SetOrderProviderSession(ctx, repository.SetOrderProviderSessionParams{
		ID:                order.ID,
		ProviderSessionID: session.ID,
	})
	if err != nil {
		// The callback still finds the order through the session metadata.
		s.logger.Error("failed to store payment session", "order_id", order.ID, "session_id", session.ID, "error", err)
	}
	result.RedirectURL = session.URL
}

func (s *checkoutService) replay(ctx context.Context, orderID uuid.UUID) (*domain.CheckoutResult, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if telemetry.Business != nil {
		telemetry.Business.CheckoutReplayed.Inc()
	}
	s.logger.Info("checkout replayed", "order_id", order.ID, "order_number", order.OrderNumber)
	return &domain.CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalCents:  order.TotalCents,
		Replayed:    true,
	}, nil
}

func (s *checkoutService) reject(ctx context.Context, op string, state domain.CheckoutState, params domain.CheckoutParams, start time.Time, err error) error {
	reason := domain.ErrorKind(err)
	if reason == "" {
		reason = domain.ErrorCode(err)
	}
	if telemetry.Business != nil {
		telemetry.Business.CheckoutRejected.WithLabelValues(reason, string(state)).Inc()
		telemetry.Business.CheckoutDuration.WithLabelValues("rejected").Observe(s.now().Sub(start).Seconds())
	}

	level := slog.LevelInfo
	if domain.ErrorCode(err) == domain.EINTERNAL {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "checkout rejected",
		"op", op,
		"state", state,
		"reason", reason,
		"user_id", params.UserID,
		"cart_id", params.CartID,
		"error", err,
	)
	return passThrough(err, op, "failed to place order")
}

// PaymentMethods lists active methods. Provider methods are hidden when no
// provider is configured.
func (s *checkoutService) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.store.ListActivePaymentMethods(ctx)
	if err != nil {
		return nil, domain.Internal(err, "checkout.payment_methods", "failed to list payment methods")
	}
	methods := make([]domain.PaymentMethod, 0, len(rows))
	for _, row := range rows {
		kind := domain.PaymentMethodKind(row.Kind)
		if kind == domain.PaymentKindProvider && s.provider == nil {
			continue
		}
		methods = append(methods, domain.PaymentMethod{
			ID:       row.ID,
			Name:     row.Name,
			Kind:     kind,
			Provider: row.Provider,
			IsActive: row.IsActive,
		})
	}
	return methods, nil
}

// newOrderNumber formats LIC-YYYYMMDD-XXXXXXXX from the order id.
func newOrderNumber(now time.Time, id uuid.UUID) string {
	return fmt.Sprintf("LIC-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}

func couponID(c *domain.Coupon) uuid.UUID {
	if c == nil {
		return uuid.Nil
	}
	return c.ID
}

func couponCode(c *domain.Coupon) string {
	if c == nil {
		return ""
	}
	return c.Code
}
