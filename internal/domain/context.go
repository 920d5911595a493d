// Package domain provides core business types and context helpers for Licensa.
//
// Context helpers centralize request-scoped identity access so the cart,
// checkout and admin handlers read the caller the same way.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	// userContextKey stores the authenticated customer in context.
	userContextKey contextKey = iota

	// staffContextKey stores the staff member acting through the admin API.
	staffContextKey

	// guestTokenContextKey stores the anonymous cart token.
	guestTokenContextKey

	// requestIDContextKey stores the request ID for tracing.
	requestIDContextKey
)

// User is the customer identity supplied by the authentication collaborator.
type User struct {
	ID uuid.UUID
}

// Staff is the identity of an admin acting on orders, credits or coupons.
type Staff struct {
	ID uuid.UUID
}

// --- User Context Helpers ---

// NewContextWithUser returns a new context with the user attached.
func NewContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the user from context.
// Returns nil if no user is present.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// UserIDFromContext retrieves the user ID from context.
// Returns uuid.Nil if no user is present.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if user := UserFromContext(ctx); user != nil {
		return user.ID
	}
	return uuid.Nil
}

// RequireUserID retrieves the user ID from context, panicking if not present.
// Use this in service layers where authenticated user is required.
func RequireUserID(ctx context.Context) uuid.UUID {
	id := UserIDFromContext(ctx)
	if id == uuid.Nil {
		panic("user_id required in context but not found")
	}
	return id
}

// --- Staff Context Helpers ---

// NewContextWithStaff returns a new context with the staff member attached.
func NewContextWithStaff(ctx context.Context, staff *Staff) context.Context {
	return context.WithValue(ctx, staffContextKey, staff)
}

// StaffFromContext retrieves the staff member from context.
// Returns nil if none is present.
func StaffFromContext(ctx context.Context) *Staff {
	staff, _ := ctx.Value(staffContextKey).(*Staff)
	return staff
}

// StaffIDFromContext retrieves the staff ID from context.
// Returns uuid.Nil if no staff member is present.
func StaffIDFromContext(ctx context.Context) uuid.UUID {
	if staff := StaffFromContext(ctx); staff != nil {
		return staff.ID
	}
	return uuid.Nil
}

// --- Guest Cart Context Helpers ---

// NewContextWithGuestToken returns a new context carrying the anonymous cart token.
func NewContextWithGuestToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, guestTokenContextKey, token)
}

// GuestTokenFromContext retrieves the anonymous cart token.
// Returns empty string if none is present.
func GuestTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(guestTokenContextKey).(string)
	return token
}

// --- Request ID Context Helpers ---

// NewContextWithRequestID returns a new context with the request ID attached.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey).(string)
	return requestID
}

// --- Convenience Helpers ---

// IsAuthenticated returns true if there is a user in context.
func IsAuthenticated(ctx context.Context) bool {
	return UserFromContext(ctx) != nil
}

// IsStaff returns true if there is a staff member in context.
func IsStaff(ctx context.Context) bool {
	return StaffFromContext(ctx) != nil
}

// CartRefFromContext builds the cart reference for the current caller:
// the user's cart when signed in, otherwise the guest cart.
func CartRefFromContext(ctx context.Context) CartRef {
	if id := UserIDFromContext(ctx); id != uuid.Nil {
		return CartRef{UserID: id}
	}
	return CartRef{GuestToken: GuestTokenFromContext(ctx)}
}
