package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/google/uuid"
)

type couponLedger struct {
	store     repository.Store
	credits   domain.CreditLedger
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewCouponLedger creates the coupon ledger. Credit coupons pay out through
// credits in the same transaction as the usage increment.
func NewCouponLedger(store repository.Store, credits domain.CreditLedger, publisher events.Publisher, logger *slog.Logger) domain.CouponLedger {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &couponLedger{
		store:     store,
		credits:   credits,
		publisher: publisher,
		logger:    logger.With("service", "coupon"),
		now:       time.Now,
	}
}

// Check looks the code up and evaluates eligibility without writing.
func (s *couponLedger) Check(ctx context.Context, code string, orderAmount int64) (*domain.Coupon, error) {
	const op = "coupon.check"

	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, s.rejected(domain.ErrCouponNotFound.WithDetail(op, ""))
	}

	row, err := s.store.GetCouponByCode(ctx, code)
	if repository.IsNotFound(err) {
		return nil, s.rejected(domain.ErrCouponNotFound.WithDetail(op, fmt.Sprintf("Coupon %s not found", code)))
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load coupon")
	}

	c := couponFromRow(row)
	if err := c.Eligibility(s.now(), orderAmount); err != nil {
		return nil, s.rejected(err)
	}
	return c, nil
}

// Redeem consumes one use of a credit coupon outside checkout. Discount
// coupons only make sense against an order and are refused here.
func (s *couponLedger) Redeem(ctx context.Context, code string, userID uuid.UUID, orderAmount int64) (*domain.Redemption, error) {
	c, err := s.Check(ctx, code, orderAmount)
	if err != nil {
		return nil, err
	}
	if c.Effect != domain.CouponEffectCredit {
		return nil, domain.ErrCouponNeedsCheckout
	}

	var red *domain.Redemption
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		red, err = s.RedeemTx(ctx, q, c, domain.RedeemParams{UserID: userID, OrderAmount: orderAmount})
		return err
	})
	if err != nil {
		return nil, passThrough(err, "coupon.redeem", "failed to redeem coupon")
	}

	s.logger.Info("coupon redeemed",
		"code", red.Code,
		"user_id", userID,
		"credit_amount", red.CreditAmount,
		"used_count", red.UsedCount,
	)
	publishCredit(ctx, s.publisher, s.logger, red.CreditTransaction)
	return red, nil
}

// RedeemTx increments the usage counter with a guarded UPDATE, records the
// usage row and applies the coupon's effect. A coupon that stopped being
// eligible since Check yields the matching error and nothing is written.
func (s *couponLedger) RedeemTx(ctx context.Context, q repository.Querier, c *domain.Coupon, p domain.RedeemParams) (*domain.Redemption, error) {
	const op = "coupon.redeem"

	if p.OrderAmount < c.MinAmount {
		return nil, s.rejected(domain.ErrCouponMinAmountNotMet.WithDetail(op, ""))
	}

	used, err := q.IncrementCouponUsage(ctx, repository.IncrementCouponUsageParams{ID: c.ID, Now: s.now()})
	if repository.IsNotFound(err) {
		return nil, s.rejected(s.explainRejected(ctx, q, c))
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to update coupon usage")
	}

	red := &domain.Redemption{
		CouponID:  c.ID,
		Code:      c.Code,
		Effect:    c.Effect,
		UsedCount: int(used),
	}

	var grantedAt time.Time
	switch c.Effect {
	case domain.CouponEffectCredit:
		red.CreditAmount = c.Value
		if p.DeferCredit && p.OrderID != uuid.Nil {
			red.CreditDeferred = true
			break
		}
		tx, err := s.credits.CreditTx(ctx, q, p.UserID, c.Value, domain.CreditEntry{
			Type:    domain.CreditCoupon,
			Note:    "Coupon " + c.Code,
			OrderID: p.OrderID,
		})
		if err != nil {
			return nil, err
		}
		red.CreditTransaction = tx
		grantedAt = s.now()
	case domain.CouponEffectDiscount:
		red.DiscountAmount = c.DiscountFor(p.OrderAmount)
	}

	_, err = q.InsertCouponUsage(ctx, repository.InsertCouponUsageParams{
		CouponID:        c.ID,
		UserID:          p.UserID,
		OrderID:         repository.NullUUID(p.OrderID),
		CreditAmount:    red.CreditAmount,
		DiscountAmount:  red.DiscountAmount,
		CreditGrantedAt: repository.NullTime(grantedAt),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record coupon usage")
	}

	if telemetry.Business != nil {
		telemetry.Business.CouponRedemptions.WithLabelValues(string(c.Effect)).Inc()
	}
	return red, nil
}

// SettleTx claims the deferred usage rows of an order and pays each one out.
// Rows already paid or reversed are not claimed again.
func (s *couponLedger) SettleTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*domain.CreditTransaction, error) {
	usages, err := q.GrantPendingCouponCredit(ctx, repository.GrantPendingCouponCreditParams{
		OrderID: repository.NullUUID(orderID),
		Now:     s.now(),
	})
	if err != nil {
		return nil, domain.Internal(err, "coupon.settle", "failed to claim deferred coupon credit")
	}

	var txs []*domain.CreditTransaction
	for _, u := range usages {
		tx, err := s.credits.CreditTx(ctx, q, u.UserID, u.CreditAmount, domain.CreditEntry{
			Type:    domain.CreditCoupon,
			Note:    "Coupon " + u.Code,
			OrderID: orderID,
		})
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ReverseTx stamps the order's usage rows as reversed, gives each use back to
// its coupon and debits coupon credit that was already paid out.
func (s *couponLedger) ReverseTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*domain.CreditTransaction, error) {
	const op = "coupon.reverse"

	usages, err := q.ReverseCouponUsages(ctx, repository.ReverseCouponUsagesParams{
		OrderID: repository.NullUUID(orderID),
		Now:     s.now(),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to reverse coupon usage")
	}

	var txs []*domain.CreditTransaction
	for _, u := range usages {
		if _, err := q.ReleaseCouponUsage(ctx, u.CouponID); err != nil && !repository.IsNotFound(err) {
			return nil, domain.Internal(err, op, "failed to release coupon usage")
		}
		if u.CreditAmount <= 0 || !u.CreditGrantedAt.Valid {
			continue
		}
		tx, err := s.credits.DebitTx(ctx, q, u.UserID, u.CreditAmount, domain.CreditEntry{
			Type:    domain.CreditCoupon,
			Note:    "Coupon " + u.Code + " reversed",
			OrderID: orderID,
		})
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if len(usages) > 0 {
		s.logger.Info("coupon usage reversed", "order_id", orderID, "usages", len(usages), "credit_reversed", len(txs))
	}
	return txs, nil
}

// explainRejected re-reads the coupon after the guarded increment matched no
// row and reports why.
func (s *couponLedger) explainRejected(ctx context.Context, q repository.Querier, c *domain.Coupon) error {
	const op = "coupon.redeem"
	row, err := q.GetCouponByCode(ctx, c.Code)
	if repository.IsNotFound(err) {
		return domain.ErrCouponNotFound.WithDetail(op, "")
	}
	if err != nil {
		return domain.Internal(err, op, "failed to load coupon")
	}
	current := couponFromRow(row)
	if err := current.Eligibility(s.now(), c.MinAmount); err != nil {
		return err
	}
	return domain.ErrCouponExhausted.WithDetail(op, "")
}

func (s *couponLedger) rejected(err error) error {
	if telemetry.Business != nil {
		telemetry.Business.CouponRejected.WithLabelValues(domain.ErrorKind(err)).Inc()
	}
	return err
}

func (s *couponLedger) Create(ctx context.Context, params domain.NewCoupon) (*domain.Coupon, error) {
	const op = "coupon.create"

	params.Code = domain.NormalizeCouponCode(params.Code)

	var verr error
	if params.Code == "" {
		verr = domain.AddFieldError(verr, "code", "is required")
	}
	if !params.Effect.Valid() {
		verr = domain.AddFieldError(verr, "effect", "must be credit or discount")
	}
	if params.Value <= 0 {
		verr = domain.AddFieldError(verr, "value", "must be greater than 0")
	}
	if params.MinAmount < 0 {
		verr = domain.AddFieldError(verr, "minAmount", "must not be negative")
	}
	if params.MaxUses < 1 || params.MaxUses > math.MaxInt32 {
		verr = domain.AddFieldError(verr, "maxUses", "must be at least 1")
	}
	if !params.ExpiresAt.After(s.now()) {
		verr = domain.AddFieldError(verr, "expiresAt", "must be in the future")
	}
	if verr != nil {
		if ve, ok := verr.(*domain.ValidationError); ok {
			ve.Op = op
		}
		return nil, verr
	}

	row, err := s.store.CreateCoupon(ctx, repository.CreateCouponParams{
		Code:      params.Code,
		Effect:    string(params.Effect),
		Value:     params.Value,
		MinAmount: params.MinAmount,
		MaxUses:   int32(params.MaxUses),
		ExpiresAt: params.ExpiresAt,
		IsActive:  params.IsActive,
	})
	if repository.IsUniqueViolation(err) {
		return nil, domain.ErrCouponCodeTaken
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create coupon")
	}

	s.logger.Info("coupon created", "code", row.Code, "effect", row.Effect, "max_uses", row.MaxUses)
	return couponFromRow(row), nil
}

func couponFromRow(row repository.Coupon) *domain.Coupon {
	return &domain.Coupon{
		ID:        row.ID,
		Code:      row.Code,
		Effect:    domain.CouponEffect(row.Effect),
		Value:     row.Value,
		MinAmount: row.MinAmount,
		MaxUses:   int(row.MaxUses),
		UsedCount: int(row.UsedCount),
		ExpiresAt: row.ExpiresAt,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
}
