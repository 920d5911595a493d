package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	ApplyCreditDelta(ctx context.Context, arg ApplyCreditDeltaParams) (int64, error)
	AssignCartToUser(ctx context.Context, arg AssignCartToUserParams) (Cart, error)
	ClearCartItems(ctx context.Context, cartID uuid.UUID) error
	CompleteCheckoutAttempt(ctx context.Context, arg CompleteCheckoutAttemptParams) error
	CreateCart(ctx context.Context, arg CreateCartParams) (Cart, error)
	CreateCheckoutAttempt(ctx context.Context, arg CreateCheckoutAttemptParams) (CheckoutAttempt, error)
	CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error)
	CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error)
	CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error)
	DeleteCart(ctx context.Context, id uuid.UUID) error
	DeleteCartItem(ctx context.Context, id uuid.UUID) error
	DeleteStaleGuestCarts(ctx context.Context, before time.Time) (int64, error)
	GetCartByGuestToken(ctx context.Context, guestToken string) (Cart, error)
	GetCartByID(ctx context.Context, id uuid.UUID) (Cart, error)
	GetCartByUserID(ctx context.Context, userID uuid.UUID) (Cart, error)
	GetCartItem(ctx context.Context, id uuid.UUID) (CartItem, error)
	GetCartItemByProduct(ctx context.Context, arg GetCartItemByProductParams) (CartItem, error)
	GetCheckoutAttempt(ctx context.Context, token string) (CheckoutAttempt, error)
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetPaymentMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GrantPendingCouponCredit(ctx context.Context, arg GrantPendingCouponCreditParams) ([]OrderCouponUsage, error)
	IncrementCouponUsage(ctx context.Context, arg IncrementCouponUsageParams) (int32, error)
	InsertCartItem(ctx context.Context, arg InsertCartItemParams) (CartItem, error)
	InsertCouponUsage(ctx context.Context, arg InsertCouponUsageParams) (CouponUsage, error)
	InsertCreditTransaction(ctx context.Context, arg InsertCreditTransactionParams) (CreditTransaction, error)
	ListActivePaymentMethods(ctx context.Context) ([]PaymentMethod, error)
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]ListCartItemsRow, error)
	ListCreditTransactions(ctx context.Context, arg ListCreditTransactionsParams) ([]CreditTransaction, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error)
	ListStalePendingOrders(ctx context.Context, arg ListStalePendingOrdersParams) ([]uuid.UUID, error)
	LockCart(ctx context.Context, id uuid.UUID) (Cart, error)
	LockCheckoutAttempt(ctx context.Context, token string) (CheckoutAttempt, error)
	LockOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ReleaseCouponUsage(ctx context.Context, id uuid.UUID) (int32, error)
	ReleaseStock(ctx context.Context, arg ReleaseStockParams) (int32, error)
	ReserveStock(ctx context.Context, arg ReserveStockParams) (int32, error)
	ReverseCouponUsages(ctx context.Context, arg ReverseCouponUsagesParams) ([]OrderCouponUsage, error)
	SetCartItemQuantity(ctx context.Context, arg SetCartItemQuantityParams) error
	SetOrderProviderSession(ctx context.Context, arg SetOrderProviderSessionParams) error
	SumCreditTransactions(ctx context.Context, userID uuid.UUID) (int64, error)
	TouchCart(ctx context.Context, id uuid.UUID) (int64, error)
	UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error)
}

var _ Querier = (*Queries)(nil)
