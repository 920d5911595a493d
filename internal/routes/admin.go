package routes

import (
	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/dukerupert/licensa/internal/router"
)

// RegisterAdminRoutes registers the staff API.
// All routes require a staff identity from the authentication proxy.
func RegisterAdminRoutes(r *router.Router, deps AdminDeps) {
	admin := r.Group(middleware.RequireStaff, middleware.MaxBodySize())

	// Order lifecycle
	admin.Post("/admin/api/orders/{id}/status", deps.Admin.SetOrderStatus)

	// Credit ledger
	admin.Get("/admin/api/users/{id}/credits", deps.Admin.UserCredits)
	admin.Post("/admin/api/users/{id}/credits", deps.Admin.AdjustCredits)
	admin.Get("/admin/api/users/{id}/credits/reconcile", deps.Admin.Reconcile)

	// Coupons
	admin.Post("/admin/api/coupons", deps.Admin.CreateCoupon)
}
