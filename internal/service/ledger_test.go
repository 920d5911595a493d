package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Stock ledger
// =============================================================================

func TestStockLedger_Reserve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product := env.store.addProduct("Pro License", 4900, 3)

	left, err := env.stock.Reserve(ctx, product, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	_, err = env.stock.Reserve(ctx, product, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.KindInsufficientStock, domain.ErrorKind(err))
	assert.Contains(t, domain.ErrorMessage(err), "Only 1 of Pro License left")
	assert.Equal(t, int32(1), env.store.product(product).Stock)
}

func TestStockLedger_Reserve_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product := env.store.addProduct("Pro License", 4900, 3)

	_, err := env.stock.Reserve(ctx, product, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = env.stock.Reserve(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestStockLedger_Reserve_InactiveProduct(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product := env.store.addProduct("Legacy License", 900, 10)
	env.store.update(func(st *memState) {
		p := st.products[product]
		p.IsActive = false
		st.products[product] = p
	})

	_, err := env.stock.Reserve(ctx, product, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, domain.ErrorMessage(err), "no longer available")

	available, err := env.stock.Available(ctx, product)
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestStockLedger_Release(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product := env.store.addProduct("Pro License", 4900, 1)

	_, err := env.stock.Reserve(ctx, product, 1)
	require.NoError(t, err)
	left, err := env.stock.Release(ctx, product, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestStockLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	product := env.store.addProduct("Seat", 1000, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.stock.Reserve(ctx, product, 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, success)
	assert.Equal(t, int32(0), env.store.product(product).Stock)
}

// =============================================================================
// Credit ledger
// =============================================================================

func TestCreditLedger_DebitAndCredit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(500)

	tx, err := env.credits.Debit(ctx, user, 200, domain.CreditEntry{Type: domain.CreditUsage, Note: "test"})
	require.NoError(t, err)
	assert.Equal(t, int64(-200), tx.Amount)
	assert.Equal(t, int64(300), tx.Balance)

	tx, err = env.credits.Credit(ctx, user, 50, domain.CreditEntry{Type: domain.CreditRefund})
	require.NoError(t, err)
	assert.Equal(t, int64(50), tx.Amount)
	assert.Equal(t, int64(350), tx.Balance)

	balance, err := env.credits.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(350), balance)
	env.requireBalanced(t, user)

	assert.Equal(t, []string{events.SubjectCreditTransaction, events.SubjectCreditTransaction}, env.events.Subjects())
}

func TestCreditLedger_Debit_Insufficient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(100)

	_, err := env.credits.Debit(ctx, user, 101, domain.CreditEntry{Type: domain.CreditUsage})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))

	assert.Equal(t, int64(100), env.store.user(user).Credits)
	assert.Len(t, env.store.creditTransactions(user), 1, "only the opening balance")
	env.requireBalanced(t, user)
}

func TestCreditLedger_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(100)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "zero debit",
			run: func() error {
				_, err := env.credits.Debit(ctx, user, 0, domain.CreditEntry{Type: domain.CreditUsage})
				return err
			},
			want: domain.ErrInvalidCreditAmount,
		},
		{
			name: "negative credit",
			run: func() error {
				_, err := env.credits.Credit(ctx, user, -5, domain.CreditEntry{Type: domain.CreditRefund})
				return err
			},
			want: domain.ErrInvalidCreditAmount,
		},
		{
			name: "unknown user",
			run: func() error {
				_, err := env.credits.Credit(ctx, uuid.New(), 5, domain.CreditEntry{Type: domain.CreditRefund})
				return err
			},
			want: domain.ErrUserNotFound,
		},
		{
			name: "zero adjustment",
			run: func() error {
				_, err := env.credits.Adjust(ctx, user, 0, "nothing")
				return err
			},
			want: domain.ErrInvalidCreditAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}
}

func TestCreditLedger_Adjust(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(0)

	tx, err := env.credits.Adjust(ctx, user, 1500, "goodwill")
	require.NoError(t, err)
	assert.Equal(t, domain.CreditAdminAdd, tx.Type)
	assert.Equal(t, int64(1500), tx.Balance)

	tx, err = env.credits.Adjust(ctx, user, -500, "correction")
	require.NoError(t, err)
	assert.Equal(t, domain.CreditAdminAdd, tx.Type)
	assert.Equal(t, int64(-500), tx.Amount)
	assert.Equal(t, int64(1000), tx.Balance)

	_, err = env.credits.Adjust(ctx, user, -5000, "too much")
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)
	env.requireBalanced(t, user)
}

func TestCreditLedger_History(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(1000)

	_, err := env.credits.Debit(ctx, user, 300, domain.CreditEntry{Type: domain.CreditUsage})
	require.NoError(t, err)
	_, err = env.credits.Credit(ctx, user, 100, domain.CreditEntry{Type: domain.CreditCoupon})
	require.NoError(t, err)

	history, err := env.credits.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, domain.CreditCoupon, history[0].Type)
	assert.Equal(t, int64(800), history[0].Balance)
	assert.Equal(t, domain.CreditUsage, history[1].Type)
	assert.Equal(t, int64(700), history[1].Balance)
	assert.Equal(t, int64(1000), history[2].Balance)

	limited, err := env.credits.History(ctx, user, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCreditLedger_History_RowsFromOneTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(300)
	product := env.store.addProduct("Pro License", 300, 10)
	env.creditCoupon("BACK50", 50, 0, 5, 0)
	env.fillCart(t, user, product, 1)

	// The debit and the coupon grant commit together and share a timestamp.
	_, err := env.checkout.Checkout(ctx, domain.CheckoutParams{
		UserID:          user,
		PaymentMethodID: env.creditMethod,
		CouponCode:      "BACK50",
	})
	require.NoError(t, err)

	history, err := env.credits.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, history[0].CreatedAt, history[1].CreatedAt)

	assert.Equal(t, domain.CreditCoupon, history[0].Type)
	assert.Equal(t, int64(50), history[0].Balance)
	assert.Equal(t, domain.CreditUsage, history[1].Type)
	assert.Equal(t, int64(0), history[1].Balance)
	assert.Equal(t, domain.CreditAdminAdd, history[2].Type)
	assert.Equal(t, int64(300), history[2].Balance)
	env.requireBalanced(t, user)
}

func TestCreditLedger_Reconcile_Drift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(100)

	// Simulate a balance written behind the ledger's back.
	env.store.update(func(st *memState) {
		u := st.users[user]
		u.Credits = 250
		st.users[user] = u
	})

	rec, err := env.credits.Reconcile(ctx, user)
	require.NoError(t, err)
	assert.False(t, rec.Consistent())
	assert.Equal(t, int64(250), rec.CachedBalance)
	assert.Equal(t, int64(100), rec.LedgerBalance)

	_, err = env.credits.Reconcile(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCreditLedger_ConcurrentDebitsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(1000)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.credits.Debit(ctx, user, 70, domain.CreditEntry{Type: domain.CreditUsage})
		}()
	}
	wg.Wait()

	u := env.store.user(user)
	assert.GreaterOrEqual(t, u.Credits, int64(0))
	assert.Equal(t, int64(1000-14*70), u.Credits)
	env.requireBalanced(t, user)
}

func TestCreditLedger_InsertFailureRollsBackBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(500)
	env.store.failOn["InsertCreditTransaction"] = errors.New("disk full")

	_, err := env.credits.Debit(ctx, user, 100, domain.CreditEntry{Type: domain.CreditUsage})
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	delete(env.store.failOn, "InsertCreditTransaction")
	assert.Equal(t, int64(500), env.store.user(user).Credits)
	env.requireBalanced(t, user)
}

// =============================================================================
// Coupon ledger
// =============================================================================

func TestCouponLedger_Check_Precedence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.store.addCoupon(repository.Coupon{
		Code: "EVERYTHINGWRONG", Effect: "credit", Value: 50, MinAmount: 1000, MaxUses: 1, UsedCount: 1,
		ExpiresAt: time.Now().Add(-time.Hour), IsActive: false,
	})
	env.store.addCoupon(repository.Coupon{
		Code: "INACTIVEFULL", Effect: "credit", Value: 50, MinAmount: 1000, MaxUses: 1, UsedCount: 1,
		ExpiresAt: time.Now().Add(time.Hour), IsActive: false,
	})
	env.creditCoupon("FULLUP", 50, 1000, 1, 1)
	env.creditCoupon("BIGSPENDER", 50, 1000, 5, 0)
	env.creditCoupon("WELCOME", 50, 0, 5, 0)

	tests := []struct {
		code string
		want error
	}{
		{"NOPE", domain.ErrCouponNotFound},
		{"", domain.ErrCouponNotFound},
		{"everythingwrong", domain.ErrCouponExpired},
		{"INACTIVEFULL", domain.ErrCouponInactive},
		{"FULLUP", domain.ErrCouponExhausted},
		{"BIGSPENDER", domain.ErrCouponMinAmountNotMet},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := env.coupons.Check(ctx, tt.code, 500)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	c, err := env.coupons.Check(ctx, "  welcome ", 500)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)
}

func TestCouponLedger_Redeem_CreditCoupon(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(10)
	coupon := env.creditCoupon("WELCOME50", 50, 0, 3, 0)

	red, err := env.coupons.Redeem(ctx, "welcome50", user, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), red.CreditAmount)
	assert.Equal(t, 1, red.UsedCount)
	require.NotNil(t, red.CreditTransaction)
	assert.Equal(t, domain.CreditCoupon, red.CreditTransaction.Type)

	assert.Equal(t, int64(60), env.store.user(user).Credits)
	assert.Equal(t, int32(1), env.store.coupon(coupon).UsedCount)
	assert.Equal(t, 1, env.store.couponUsageCount())
	env.requireBalanced(t, user)
}

func TestCouponLedger_Redeem_DiscountCouponNeedsCheckout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.store.addUser(0)
	coupon := env.discountCoupon("TENOFF", 1000, 0, 3)

	_, err := env.coupons.Redeem(ctx, "TENOFF", user, 0)
	assert.ErrorIs(t, err, domain.ErrCouponNeedsCheckout)
	assert.Equal(t, int32(0), env.store.coupon(coupon).UsedCount)
}

// Scenario C: two racing redemptions of the last use.
func TestCouponLedger_ConcurrentRedeemOfLastUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	coupon := env.creditCoupon("LASTONE", 25, 0, 5, 4)
	users := []uuid.UUID{env.store.addUser(0), env.store.addUser(0)}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func(i int, user uuid.UUID) {
			defer wg.Done()
			_, errs[i] = env.coupons.Redeem(ctx, "LASTONE", user, 0)
		}(i, user)
	}
	wg.Wait()

	var ok, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCouponExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, int32(5), env.store.coupon(coupon).UsedCount)
	for _, user := range users {
		env.requireBalanced(t, user)
	}
}

func TestCouponLedger_ManyConcurrentRedeemsOfSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	coupon := env.creditCoupon("ONCE", 10, 0, 1, 0)
	user := env.store.addUser(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.coupons.Redeem(ctx, "ONCE", user, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), env.store.coupon(coupon).UsedCount)
	assert.Equal(t, int64(10), env.store.user(user).Credits)
}

func TestCouponLedger_Create(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	c, err := env.coupons.Create(ctx, domain.NewCoupon{
		Code:      " spring25 ",
		Effect:    domain.CouponEffectDiscount,
		Value:     2500,
		MaxUses:   100,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
		IsActive:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPRING25", c.Code)

	_, err = env.coupons.Create(ctx, domain.NewCoupon{
		Code:      "SPRING25",
		Effect:    domain.CouponEffectDiscount,
		Value:     2500,
		MaxUses:   100,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrCouponCodeTaken)

	_, err = env.coupons.Create(ctx, domain.NewCoupon{Effect: "bogus", ExpiresAt: time.Now().Add(-time.Hour)})
	require.Error(t, err)
	fields := domain.GetValidationFields(err)
	assert.Contains(t, fields, "code")
	assert.Contains(t, fields, "effect")
	assert.Contains(t, fields, "value")
	assert.Contains(t, fields, "maxUses")
	assert.Contains(t, fields, "expiresAt")
}
