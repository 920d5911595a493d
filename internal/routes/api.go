package routes

import (
	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/dukerupert/licensa/internal/router"
)

// RegisterAPIRoutes registers the storefront JSON API.
//
// Cart routes work for guests and signed-in users alike. Everything that
// touches orders, credits or coupons requires a user identity.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	body := r.Group(middleware.MaxBodySize())

	// Cart (guest or user)
	body.Get("/api/cart", deps.Cart.View)
	body.Post("/api/cart/items", deps.Cart.AddItem)
	body.Patch("/api/cart/items/{id}", deps.Cart.UpdateItem)
	body.Delete("/api/cart/items/{id}", deps.Cart.RemoveItem)
	body.Get("/api/payment-methods", deps.Checkout.PaymentMethods)

	user := body.Group(middleware.RequireUser)
	user.Post("/api/cart/merge", deps.Cart.Merge)

	// Checkout and redemption are rate limited per caller when configured.
	limited := user
	if deps.CheckoutLimiter != nil {
		limited = user.Group(deps.CheckoutLimiter.Middleware)
	}
	limited.Post("/api/checkout/attempts", deps.Checkout.BeginAttempt)
	limited.Post("/api/checkout", deps.Checkout.Checkout)
	limited.Post("/api/coupons/check", deps.Account.CheckCoupon)
	limited.Post("/api/coupons/redeem", deps.Account.RedeemCoupon)

	// Account
	user.Get("/api/orders", deps.Account.Orders)
	user.Get("/api/orders/{id}", deps.Account.Order)
	user.Get("/api/credits", deps.Account.Credits)
}
