package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/licensa/internal/billing"
	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testEnv wires every service to one in-memory store, the same way the
// server does against PostgreSQL.
type testEnv struct {
	store    *memStore
	events   *events.MemoryPublisher
	provider *billing.MockProvider

	stock    domain.StockLedger
	credits  domain.CreditLedger
	coupons  domain.CouponLedger
	carts    domain.CartService
	orders   domain.OrderService
	checkout domain.CheckoutService

	creditMethod   uuid.UUID
	providerMethod uuid.UUID
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newMemStore(),
		events:   &events.MemoryPublisher{},
		provider: billing.NewMockProvider(),
	}
	logger := discardLogger()

	env.stock = NewStockLedger(env.store, logger)
	env.credits = NewCreditLedger(env.store, env.events, logger)
	env.coupons = NewCouponLedger(env.store, env.credits, env.events, logger)
	env.carts = NewCartService(env.store, logger)
	env.orders = NewOrderService(env.store, env.stock, env.credits, env.coupons, env.events, logger)
	env.checkout = NewCheckoutService(CheckoutDeps{
		Store:      env.store,
		Stock:      env.stock,
		Credits:    env.credits,
		Coupons:    env.coupons,
		Orders:     env.orders,
		Provider:   env.provider,
		Publisher:  env.events,
		Logger:     logger,
		Currency:   "USD",
		SuccessURL: "https://shop.example.com/checkout/success",
		CancelURL:  "https://shop.example.com/checkout/cancel",
	})

	env.creditMethod = env.store.addPaymentMethod("Account credit", "credit")
	env.providerMethod = env.store.addPaymentMethod("Card", "provider")
	return env
}

// fillCart puts qty units of product into the user's cart.
func (e *testEnv) fillCart(t *testing.T, userID, productID uuid.UUID, qty int) *domain.CartSummary {
	t.Helper()
	summary, err := e.carts.AddItem(context.Background(), domain.CartRef{UserID: userID}, productID, qty)
	require.NoError(t, err)
	return summary
}

func (e *testEnv) creditCoupon(code string, value, minAmount int64, maxUses, used int32) uuid.UUID {
	return e.store.addCoupon(repository.Coupon{
		Code:      code,
		Effect:    string(domain.CouponEffectCredit),
		Value:     value,
		MinAmount: minAmount,
		MaxUses:   maxUses,
		UsedCount: used,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		IsActive:  true,
	})
}

func (e *testEnv) discountCoupon(code string, value, minAmount int64, maxUses int32) uuid.UUID {
	return e.store.addCoupon(repository.Coupon{
		Code:      code,
		Effect:    string(domain.CouponEffectDiscount),
		Value:     value,
		MinAmount: minAmount,
		MaxUses:   maxUses,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		IsActive:  true,
	})
}

// requireBalanced asserts the cached balance equals the transaction log sum.
func (e *testEnv) requireBalanced(t *testing.T, userID uuid.UUID) {
	t.Helper()
	rec, err := e.credits.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, rec.Consistent(), "cached %d, ledger %d", rec.CachedBalance, rec.LedgerBalance)
}
