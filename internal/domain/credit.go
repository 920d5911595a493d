package domain

import (
	"context"
	"time"

	"github.com/dukerupert/licensa/internal/repository"
	"github.com/google/uuid"
)

// CreditType classifies a credit transaction.
type CreditType string

const (
	CreditAdminAdd CreditType = "admin_add"
	CreditUsage    CreditType = "usage"
	CreditCoupon   CreditType = "coupon"
	CreditRefund   CreditType = "refund"
)

// Valid reports whether t is a known transaction type.
func (t CreditType) Valid() bool {
	switch t {
	case CreditAdminAdd, CreditUsage, CreditCoupon, CreditRefund:
		return true
	}
	return false
}

var (
	ErrUserNotFound        = &Error{Code: ENOTFOUND, Message: "User not found"}
	ErrInvalidCreditAmount = &Error{Code: EINVALID, Message: "Credit amount must be greater than 0"}
)

// CreditEntry describes why a balance moves.
type CreditEntry struct {
	Type    CreditType
	Note    string
	OrderID uuid.UUID
}

// CreditTransaction is one immutable row of the credit log. Amount is signed.
type CreditTransaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      CreditType
	Amount    int64
	Note      string
	OrderID   uuid.UUID
	Balance   int64
	CreatedAt time.Time
}

// Reconciliation compares the cached balance with the sum of the log.
type Reconciliation struct {
	UserID        uuid.UUID
	CachedBalance int64
	LedgerBalance int64
}

// Consistent reports whether the cached balance equals the log sum.
func (r Reconciliation) Consistent() bool {
	return r.CachedBalance == r.LedgerBalance
}

// CreditLedger owns per-user credit balances. Every balance change writes
// exactly one CreditTransaction in the same database transaction.
type CreditLedger interface {
	// Debit removes amount from the balance. Fails with ErrInsufficientCredit
	// if the balance is below amount at write time.
	Debit(ctx context.Context, userID uuid.UUID, amount int64, entry CreditEntry) (*CreditTransaction, error)

	// Credit adds amount to the balance.
	Credit(ctx context.Context, userID uuid.UUID, amount int64, entry CreditEntry) (*CreditTransaction, error)

	// DebitTx and CreditTx run inside a caller-owned transaction.
	DebitTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry CreditEntry) (*CreditTransaction, error)
	CreditTx(ctx context.Context, q repository.Querier, userID uuid.UUID, amount int64, entry CreditEntry) (*CreditTransaction, error)

	// Adjust applies a signed admin correction as an admin_add transaction.
	Adjust(ctx context.Context, userID uuid.UUID, signedAmount int64, note string) (*CreditTransaction, error)

	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]CreditTransaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}
