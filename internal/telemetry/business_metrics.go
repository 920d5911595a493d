package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for ledger and checkout observability.
type BusinessMetrics struct {
	// Checkout funnel
	CheckoutStarted   *prometheus.CounterVec
	CheckoutCompleted *prometheus.CounterVec
	CheckoutRejected  *prometheus.CounterVec
	CheckoutReplayed  prometheus.Counter
	CheckoutDuration  *prometheus.HistogramVec

	// Orders
	OrdersCreated    *prometheus.CounterVec
	OrderValue       *prometheus.HistogramVec
	OrderTransitions *prometheus.CounterVec

	// Stock ledger
	StockReserved            prometheus.Counter
	StockReleased            prometheus.Counter
	StockReservationFailures prometheus.Counter

	// Credit ledger
	CreditDebited *prometheus.CounterVec
	CreditGranted *prometheus.CounterVec
	CreditRejects prometheus.Counter
	LedgerDrift   prometheus.Counter

	// Coupon ledger
	CouponRedemptions *prometheus.CounterVec
	CouponRejected    *prometheus.CounterVec

	// Cart
	CartMutations    *prometheus.CounterVec
	CartMerges       *prometheus.CounterVec
	CartMergeDropped prometheus.Counter

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Background jobs
	WorkerSweeps     *prometheus.CounterVec
	WorkerSweptItems *prometheus.CounterVec

	// Domain events
	EventsPublished *prometheus.CounterVec

	// External API performance
	ProviderAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates all business metrics and registers them with reg.
func NewBusinessMetrics(reg prometheus.Registerer, namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "licensa"
	}

	subsystem := "business"
	factory := promauto.With(reg)

	m := &BusinessMetrics{
		// =======================================================================
		// Checkout Funnel
		// =======================================================================
		CheckoutStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_started_total",
				Help:      "Total checkout submissions",
			},
			[]string{"payment_kind"}, // payment_kind: credit, provider, unknown
		),
		CheckoutCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_completed_total",
				Help:      "Total checkouts that created an order",
			},
			[]string{"payment_kind", "status"},
		),
		CheckoutRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_rejected_total",
				Help:      "Total checkouts rejected, by error kind and the state reached",
			},
			[]string{"kind", "state"},
		),
		CheckoutReplayed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_replayed_total",
				Help:      "Checkout submissions answered from a completed attempt token",
			},
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_duration_seconds",
				Help:      "Checkout orchestration duration",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"outcome"}, // outcome: completed, rejected, replayed
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"status"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_cents",
				Help:      "Order total distribution in minor units",
				Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
			},
			[]string{"payment_kind"},
		),
		OrderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_transitions_total",
				Help:      "Order lifecycle transitions",
			},
			[]string{"from", "to", "actor"},
		),

		// =======================================================================
		// Ledgers
		// =======================================================================
		StockReserved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_reserved_units_total",
				Help:      "Units reserved by the stock ledger (includes rolled back attempts)",
			},
		),
		StockReleased: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_released_units_total",
				Help:      "Units returned to stock by cancellations",
			},
		),
		StockReservationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_reservation_failures_total",
				Help:      "Reservations refused because stock was too low at write time",
			},
		),
		CreditDebited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "credit_debited_total",
				Help:      "Credit removed from balances, in minor units",
			},
			[]string{"type"},
		),
		CreditGranted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "credit_granted_total",
				Help:      "Credit added to balances, in minor units",
			},
			[]string{"type"},
		),
		CreditRejects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "credit_insufficient_total",
				Help:      "Debits refused for insufficient balance",
			},
		),
		LedgerDrift: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "credit_ledger_drift_total",
				Help:      "Reconciliations where the cached balance differed from the transaction log",
			},
		),
		CouponRedemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupon_redemptions_total",
				Help:      "Successful coupon redemptions",
			},
			[]string{"effect"},
		),
		CouponRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coupon_rejected_total",
				Help:      "Coupon checks and redemptions refused, by error kind",
			},
			[]string{"kind"},
		),

		// =======================================================================
		// Cart
		// =======================================================================
		CartMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_mutations_total",
				Help:      "Cart changes",
			},
			[]string{"op", "owner"}, // op: add, update, remove; owner: user, guest
		),
		CartMerges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_merges_total",
				Help:      "Guest to user cart merges",
			},
			[]string{"result"}, // result: merged, partial, noop
		),
		CartMergeDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_merge_dropped_units_total",
				Help:      "Guest cart units dropped by the stock cap during merge",
			},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhooks processed successfully",
			},
			[]string{"event_type"},
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhooks that failed processing",
			},
			[]string{"event_type", "reason"},
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_duration_seconds",
				Help:      "Webhook processing latency",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"event_type"},
		),

		// =======================================================================
		// Background Jobs
		// =======================================================================
		WorkerSweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "worker_sweeps_total",
				Help:      "Background sweeps run",
			},
			[]string{"job", "result"},
		),
		WorkerSweptItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "worker_swept_items_total",
				Help:      "Rows cleaned up by background sweeps",
			},
			[]string{"job"},
		),

		// =======================================================================
		// Domain Events
		// =======================================================================
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Domain events published",
			},
			[]string{"subject", "result"},
		),

		// =======================================================================
		// External APIs
		// =======================================================================
		ProviderAPILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_api_duration_seconds",
				Help:      "Payment provider call duration (helps differentiate app slowness from provider issues)",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	return m
}

// Global instance for easy access from services and handlers.
// Nil until InitBusinessMetrics is called; callers check before use.
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
// on the default Prometheus registry.
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(prometheus.DefaultRegisterer, namespace)
	return Business
}
