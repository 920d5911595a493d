package middleware

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/cookie"
	"github.com/dukerupert/licensa/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

// Identity headers set by the upstream authentication proxy.
const (
	UserIDHeader    = "X-User-ID"
	StaffIDHeader   = "X-Staff-ID"
	CartTokenHeader = "X-Cart-Token"
)

// WithIdentity reads the caller identity into the request context.
// Authentication itself happens upstream; this middleware only trusts the
// headers the proxy sets. A malformed id is rejected with 400. A guest cart
// token is read from the cart cookie, falling back to the X-Cart-Token header,
// and ignored when it is not a UUID.
func WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if raw := r.Header.Get(UserIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondBadRequest(w, r, "Invalid "+UserIDHeader+" header")
				return
			}
			ctx = domain.NewContextWithUser(ctx, &domain.User{ID: id})
		}

		if raw := r.Header.Get(StaffIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondBadRequest(w, r, "Invalid "+StaffIDHeader+" header")
				return
			}
			ctx = domain.NewContextWithStaff(ctx, &domain.Staff{ID: id})
		}

		if token := guestToken(r); token != "" {
			ctx = domain.NewContextWithGuestToken(ctx, token)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func guestToken(r *http.Request) string {
	token := cookie.Get(r, cookie.CartCookieName)
	if token == "" {
		token = r.Header.Get(CartTokenHeader)
	}
	if _, err := uuid.Parse(token); err != nil {
		return ""
	}
	return token
}

// RequireUser ensures a customer identity is present, returning 401 if not.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !domain.IsAuthenticated(r.Context()) {
			respondUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff ensures a staff identity is present, returning 403 if not.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !domain.IsStaff(r.Context()) {
			respondForbidden(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
