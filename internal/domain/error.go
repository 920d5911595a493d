package domain

import (
	"errors"
	"fmt"
)

// Application error codes.
// These map to HTTP status codes and determine user-facing messages.
const (
	ECONFLICT     = "conflict"         // 409 - Lost a race on a shared counter, duplicate code
	EINTERNAL     = "internal"         // 500 - Internal server error (hide details)
	EINVALID      = "invalid"          // 400 - Validation error (bad input)
	ENOTFOUND     = "not_found"        // 404 - Resource not found
	EUNAUTHORIZED = "unauthorized"     // 401 - Authentication required
	EFORBIDDEN    = "forbidden"        // 403 - Authenticated but not permitted
	ERATELIMIT    = "rate_limit"       // 429 - Too many requests
	EPAYMENT      = "payment_required" // 402 - Not enough credit or provider failure
	ETOOLARGE     = "too_large"        // 413 - Request body too large
)

// Checkout error kinds. A Kind tells the caller which corrective action
// applies (add credit, reduce quantity, pick another coupon) and is returned
// to clients as "errorKind".
const (
	KindOutOfStock             = "OutOfStock"
	KindInsufficientStock      = "InsufficientStock"
	KindInsufficientCredit     = "InsufficientCredit"
	KindCouponNotFound         = "CouponNotFound"
	KindCouponExpired          = "CouponExpired"
	KindCouponInactive         = "CouponInactive"
	KindCouponExhausted        = "CouponExhausted"
	KindCouponMinAmountNotMet  = "CouponMinAmountNotMet"
	KindEmptyCart              = "EmptyCart"
	KindInvalidPaymentMethod   = "InvalidPaymentMethod"
	KindConcurrentModification = "ConcurrentModification"
)

// Error represents an application error with a code and message.
// It implements the error interface and supports error wrapping.
type Error struct {
	// Code is a machine-readable error code (e.g., EINVALID, ENOTFOUND).
	Code string

	// Kind is the checkout error kind, empty for errors outside the ledgers.
	Kind string

	// Message is a human-readable error message safe to show to users.
	Message string

	// Op is the operation where the error occurred (e.g., "checkout.commit").
	// Used for debugging and logging, not shown to users.
	Op string

	// Err is the underlying error, if any. Used for error wrapping.
	Err error

	// sentinel is the package error this one was derived from by WithDetail.
	sentinel *Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same error, a *Error of the same Kind, or
// the sentinel e was derived from with WithDetail. Per-product detail can be
// attached to a sentinel and the result still matches it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t || (e.sentinel != nil && e.sentinel == t) {
		return true
	}
	return e.Kind != "" && e.Kind == t.Kind
}

// WithDetail returns a copy of a sentinel error with op and message replaced.
// Example: domain.ErrInsufficientStock.WithDetail("stock.reserve", "only 2 left of Pro License")
func (e *Error) WithDetail(op, message string) *Error {
	cp := *e
	cp.Op = op
	if message != "" {
		cp.Message = message
	}
	if cp.sentinel == nil {
		cp.sentinel = e
	}
	return &cp
}

// ErrorCode extracts the error code from an error.
// Returns EINTERNAL for nil or non-domain errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return EINTERNAL
}

// ErrorMessage extracts a user-facing message from an error.
// For internal errors, returns a generic message to avoid leaking details.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		// For internal errors, hide details from users
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}

	// Unknown error type - hide details
	return "An internal error occurred. Please try again later."
}

// ErrorKind extracts the checkout error kind from an error.
// Returns "" for nil errors and errors without a kind.
func ErrorKind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrorOp extracts the operation from an error (for logging).
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}

	return ""
}

// Errorf creates a new domain error with formatted message.
// Example: domain.Errorf(domain.EINVALID, "coupon.create", "invalid effect: %s", effect)
func Errorf(code, op, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// =============================================================================
// Validation Errors (field-level errors for forms)
// =============================================================================

// ValidationError represents one or more field validation failures.
// Used for form validation where multiple fields may have errors.
type ValidationError struct {
	// Fields maps field names to error messages.
	Fields map[string]string

	// Op is the operation where validation failed.
	Op string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			if e.Op != "" {
				return fmt.Sprintf("%s: %s: %s", e.Op, field, msg)
			}
			return fmt.Sprintf("%s: %s", field, msg)
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed for %d fields", e.Op, len(e.Fields))
	}
	return fmt.Sprintf("validation failed for %d fields", len(e.Fields))
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// AddFieldError adds a field error to an existing ValidationError.
// If err is nil, creates a new ValidationError.
// If err is not a ValidationError, creates a new one with the field.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if err != nil && errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}

	return &ValidationError{
		Fields: map[string]string{field: message},
	}
}

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationFields extracts field errors from a ValidationError.
// Returns nil if err is not a ValidationError.
func GetValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}

// =============================================================================
// Ledger errors
// =============================================================================

// Sentinels for each checkout error kind. Match with errors.Is; the concrete
// error returned by a ledger usually carries a more specific message.
var (
	ErrOutOfStock             = &Error{Code: ECONFLICT, Kind: KindOutOfStock, Message: "Requested quantity exceeds available stock"}
	ErrInsufficientStock      = &Error{Code: ECONFLICT, Kind: KindInsufficientStock, Message: "Insufficient stock for one or more items"}
	ErrInsufficientCredit     = &Error{Code: EPAYMENT, Kind: KindInsufficientCredit, Message: "Insufficient credit balance"}
	ErrCouponNotFound         = &Error{Code: ENOTFOUND, Kind: KindCouponNotFound, Message: "Coupon not found"}
	ErrCouponExpired          = &Error{Code: EINVALID, Kind: KindCouponExpired, Message: "Coupon has expired"}
	ErrCouponInactive         = &Error{Code: EINVALID, Kind: KindCouponInactive, Message: "Coupon is not active"}
	ErrCouponExhausted        = &Error{Code: ECONFLICT, Kind: KindCouponExhausted, Message: "Coupon has reached its usage limit"}
	ErrCouponMinAmountNotMet  = &Error{Code: EINVALID, Kind: KindCouponMinAmountNotMet, Message: "Order total is below the coupon minimum"}
	ErrEmptyCart              = &Error{Code: EINVALID, Kind: KindEmptyCart, Message: "Cart is empty"}
	ErrInvalidPaymentMethod   = &Error{Code: EINVALID, Kind: KindInvalidPaymentMethod, Message: "Payment method is unavailable"}
	ErrConcurrentModification = &Error{Code: ECONFLICT, Kind: KindConcurrentModification, Message: "Cart changed since checkout started"}
)

// =============================================================================
// Common errors (convenience)
// =============================================================================

// NotFound creates a not found error for a resource.
// Example: domain.NotFound("order.get", "order", orderID.String())
func NotFound(op, resource, identifier string) error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
	}
}

// Unauthorized creates an unauthorized error.
// Example: domain.Unauthorized("identity.user", "sign in required")
func Unauthorized(op, message string) error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Invalid creates a validation error for a single issue.
// Example: domain.Invalid("credit.debit", "amount must be positive")
func Invalid(op, message string) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error (wraps underlying error).
// The message shown to users will be generic; the underlying error is for logging.
// Example: domain.Internal(err, "order.create", "failed to save order")
func Internal(err error, op, message string) error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
