package routes

import (
	"net/http"

	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/dukerupert/licensa/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
//
// Note: Webhook routes do NOT have authentication middleware.
// Each webhook handler is responsible for verifying the request
// signature (e.g., Stripe signature verification).
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/webhooks/stripe", deps.Stripe.HandleWebhook, middleware.MaxBodySize(middleware.WebhookMaxBodySize))
}

// RegisterOpsRoutes registers health and metrics endpoints.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	if deps.Health != nil {
		r.Get("/healthz", deps.Health)
	}
	if deps.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", deps.Metrics)
	}
}
