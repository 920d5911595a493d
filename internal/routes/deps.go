package routes

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/handler/api"
	"github.com/dukerupert/licensa/internal/handler/webhook"
	"github.com/dukerupert/licensa/internal/middleware"
)

// APIDeps contains dependencies for the storefront API routes
type APIDeps struct {
	Cart     *api.CartHandler
	Checkout *api.CheckoutHandler
	Account  *api.AccountHandler

	// CheckoutLimiter throttles checkout and coupon redemption per caller.
	// Optional.
	CheckoutLimiter *middleware.RateLimiter
}

// AdminDeps contains dependencies for the staff API routes
type AdminDeps struct {
	Admin *api.AdminHandler
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	Stripe *webhook.StripeHandler
}

// OpsDeps contains the operational endpoints
type OpsDeps struct {
	Metrics http.Handler
	Health  http.HandlerFunc
}
