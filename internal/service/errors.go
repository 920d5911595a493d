package service

import (
	"errors"

	"github.com/dukerupert/licensa/internal/domain"
)

// Checkout attempt errors
var (
	ErrAttemptNotFound = domain.Errorf(domain.ENOTFOUND, "", "Checkout attempt not found")
	ErrAttemptMismatch = domain.Errorf(domain.EINVALID, "", "Checkout attempt was issued for a different cart")
)

// Order lifecycle errors
var (
	ErrUnknownPaymentOutcome = domain.Errorf(domain.EINVALID, "", "Unknown payment outcome")
	ErrSessionMismatch       = domain.Errorf(domain.EINVALID, "", "Payment session does not belong to this order")
)

// passThrough returns err unchanged when it already carries a domain code,
// otherwise wraps it as an internal error. Used on errors coming out of
// ExecTx, which mixes ledger rejections with database failures.
func passThrough(err error, op, message string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) || domain.IsValidationError(err) {
		return err
	}
	return domain.Internal(err, op, message)
}
