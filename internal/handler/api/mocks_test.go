package api

import (
	"context"
	"time"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
)

type mockCartService struct {
	AddItemFunc        func(ctx context.Context, ref domain.CartRef, productID uuid.UUID, quantity int) (*domain.CartSummary, error)
	UpdateQuantityFunc func(ctx context.Context, ref domain.CartRef, itemID uuid.UUID, quantity int) (*domain.CartSummary, error)
	RemoveItemFunc     func(ctx context.Context, ref domain.CartRef, itemID uuid.UUID) (*domain.CartSummary, error)
	SummaryFunc        func(ctx context.Context, ref domain.CartRef) (*domain.CartSummary, error)
	MergeFunc          func(ctx context.Context, guestToken string, userID uuid.UUID) (*domain.MergeResult, error)
}

func (m *mockCartService) AddItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID, quantity int) (*domain.CartSummary, error) {
	return m.AddItemFunc(ctx, ref, productID, quantity)
}

func (m *mockCartService) UpdateQuantity(ctx context.Context, ref domain.CartRef, itemID uuid.UUID, quantity int) (*domain.CartSummary, error) {
	return m.UpdateQuantityFunc(ctx, ref, itemID, quantity)
}

func (m *mockCartService) RemoveItem(ctx context.Context, ref domain.CartRef, itemID uuid.UUID) (*domain.CartSummary, error) {
	return m.RemoveItemFunc(ctx, ref, itemID)
}

func (m *mockCartService) Summary(ctx context.Context, ref domain.CartRef) (*domain.CartSummary, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx, ref)
	}
	return &domain.CartSummary{}, nil
}

func (m *mockCartService) Merge(ctx context.Context, guestToken string, userID uuid.UUID) (*domain.MergeResult, error) {
	return m.MergeFunc(ctx, guestToken, userID)
}

type mockCheckoutService struct {
	BeginAttemptFunc   func(ctx context.Context, userID uuid.UUID) (*domain.CheckoutAttempt, error)
	CheckoutFunc       func(ctx context.Context, params domain.CheckoutParams) (*domain.CheckoutResult, error)
	PaymentMethodsFunc func(ctx context.Context) ([]domain.PaymentMethod, error)
}

func (m *mockCheckoutService) BeginAttempt(ctx context.Context, userID uuid.UUID) (*domain.CheckoutAttempt, error) {
	return m.BeginAttemptFunc(ctx, userID)
}

func (m *mockCheckoutService) Checkout(ctx context.Context, params domain.CheckoutParams) (*domain.CheckoutResult, error) {
	return m.CheckoutFunc(ctx, params)
}

func (m *mockCheckoutService) PaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return m.PaymentMethodsFunc(ctx)
}

type mockOrderService struct {
	GetFunc                func(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetForUserFunc         func(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	ListForUserFunc        func(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error)
	TransitionFunc         func(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus, actor domain.Actor) (*domain.Order, error)
	HandlePaymentEventFunc func(ctx context.Context, event domain.PaymentEvent) (*domain.Order, error)
}

func (m *mockOrderService) Get(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return m.GetFunc(ctx, orderID)
}

func (m *mockOrderService) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return m.GetForUserFunc(ctx, userID, orderID)
}

func (m *mockOrderService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	return m.ListForUserFunc(ctx, userID, limit)
}

func (m *mockOrderService) Transition(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus, actor domain.Actor) (*domain.Order, error) {
	return m.TransitionFunc(ctx, orderID, to, actor)
}

func (m *mockOrderService) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) (*domain.Order, error) {
	return m.HandlePaymentEventFunc(ctx, event)
}

func (m *mockOrderService) ExpireStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	return 0, nil
}

type mockCreditLedger struct {
	AdjustFunc    func(ctx context.Context, userID uuid.UUID, signedAmount int64, note string) (*domain.CreditTransaction, error)
	BalanceFunc   func(ctx context.Context, userID uuid.UUID) (int64, error)
	HistoryFunc   func(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CreditTransaction, error)
	ReconcileFunc func(ctx context.Context, userID uuid.UUID) (*domain.Reconciliation, error)
}

func (m *mockCreditLedger) Debit(ctx context.Context, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCreditLedger) Credit(ctx context.Context, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCreditLedger) DebitTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCreditLedger) CreditTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry domain.CreditEntry) (*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCreditLedger) Adjust(ctx context.Context, userID uuid.UUID, signedAmount int64, note string) (*domain.CreditTransaction, error) {
	return m.AdjustFunc(ctx, userID, signedAmount, note)
}

func (m *mockCreditLedger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.BalanceFunc(ctx, userID)
}

func (m *mockCreditLedger) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CreditTransaction, error) {
	return m.HistoryFunc(ctx, userID, limit)
}

func (m *mockCreditLedger) Reconcile(ctx context.Context, userID uuid.UUID) (*domain.Reconciliation, error) {
	return m.ReconcileFunc(ctx, userID)
}

type mockCouponLedger struct {
	CheckFunc  func(ctx context.Context, code string, orderAmount int64) (*domain.Coupon, error)
	RedeemFunc func(ctx context.Context, code string, userID uuid.UUID, orderAmount int64) (*domain.Redemption, error)
	CreateFunc func(ctx context.Context, params domain.NewCoupon) (*domain.Coupon, error)
}

func (m *mockCouponLedger) Check(ctx context.Context, code string, orderAmount int64) (*domain.Coupon, error) {
	return m.CheckFunc(ctx, code, orderAmount)
}

func (m *mockCouponLedger) Redeem(ctx context.Context, code string, userID uuid.UUID, orderAmount int64) (*domain.Redemption, error) {
	return m.RedeemFunc(ctx, code, userID, orderAmount)
}

func (m *mockCouponLedger) RedeemTx(ctx context.Context, q repository.Querier, coupon *domain.Coupon, params domain.RedeemParams) (*domain.Redemption, error) {
	panic("not used by handlers")
}

func (m *mockCouponLedger) SettleTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCouponLedger) ReverseTx(ctx context.Context, q repository.Querier, orderID uuid.UUID) ([]*domain.CreditTransaction, error) {
	panic("not used by handlers")
}

func (m *mockCouponLedger) Create(ctx context.Context, params domain.NewCoupon) (*domain.Coupon, error) {
	return m.CreateFunc(ctx, params)
}
