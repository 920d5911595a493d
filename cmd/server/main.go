package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/licensa/internal"
	"github.com/dukerupert/licensa/internal/billing"
	"github.com/dukerupert/licensa/internal/cookie"
	"github.com/dukerupert/licensa/internal/events"
	"github.com/dukerupert/licensa/internal/handler"
	"github.com/dukerupert/licensa/internal/handler/api"
	"github.com/dukerupert/licensa/internal/handler/webhook"
	"github.com/dukerupert/licensa/internal/middleware"
	"github.com/dukerupert/licensa/internal/repository"
	"github.com/dukerupert/licensa/internal/router"
	"github.com/dukerupert/licensa/internal/routes"
	"github.com/dukerupert/licensa/internal/service"
	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/dukerupert/licensa/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := repository.NewStore(pool)

	// Metrics
	telemetry.InitBusinessMetrics(cfg.MetricsNamespace)
	metrics := middleware.NewMetrics(prometheus.DefaultRegisterer, cfg.MetricsNamespace)

	// Event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(events.NATSConfig{
			URL:    cfg.NATSURL,
			Prefix: "licensa.",
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		publisher = natsPublisher
		logger.Info("Publishing events to NATS", "url", cfg.NATSURL)
	} else {
		logger.Info("NATS_URL not set, domain events are dropped")
	}
	defer publisher.Close()

	// Payment provider
	var provider billing.Provider
	if cfg.UsesMockProvider() {
		logger.Warn("STRIPE_SECRET_KEY not set, using mock payment provider")
		provider = billing.NewMockProvider()
	} else {
		stripeConfig := billing.StripeConfig{
			APIKey:        cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		}
		stripeProvider, err := billing.NewStripeProvider(stripeConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize Stripe provider: %w", err)
		}
		provider = stripeProvider
		logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())
	}

	// Ledgers and services
	stockLedger := service.NewStockLedger(store, logger)
	creditLedger := service.NewCreditLedger(store, publisher, logger)
	couponLedger := service.NewCouponLedger(store, creditLedger, publisher, logger)
	cartService := service.NewCartService(store, logger)
	orderService := service.NewOrderService(store, stockLedger, creditLedger, couponLedger, publisher, logger)
	checkoutService := service.NewCheckoutService(service.CheckoutDeps{
		Store:      store,
		Stock:      stockLedger,
		Credits:    creditLedger,
		Coupons:    couponLedger,
		Orders:     orderService,
		Provider:   provider,
		Publisher:  publisher,
		Logger:     logger,
		Currency:   cfg.Currency,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	})

	// ==========================================================================
	// Build route dependencies
	// ==========================================================================

	cookies := cookie.NewConfig("", cfg.CookieSecure, cfg.Worker.GuestCartTTL)

	apiDeps := routes.APIDeps{
		Cart:            api.NewCartHandler(cartService, cookies),
		Checkout:        api.NewCheckoutHandler(checkoutService),
		Account:         api.NewAccountHandler(orderService, creditLedger, couponLedger),
		CheckoutLimiter: middleware.NewRateLimiter(middleware.StrictRateLimiterConfig()),
	}
	adminDeps := routes.AdminDeps{
		Admin: api.NewAdminHandler(orderService, creditLedger, couponLedger),
	}
	webhookDeps := routes.WebhookDeps{
		Stripe: webhook.NewStripeHandler(provider, orderService),
	}
	opsDeps := routes.OpsDeps{
		Metrics: metrics.Handler(),
		Health: func(w http.ResponseWriter, req *http.Request) {
			if err := store.Ping(req.Context()); err != nil {
				handler.InternalErrorResponse(w, req, err)
				return
			}
			handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	defaultRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithClientIP,
		middleware.WithIdentity,
		middleware.WithRequestLogger(logger),
		metrics.Middleware,
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.Env == "prod")),
	)

	routes.RegisterOpsRoutes(r, opsDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	limited := r.Group(defaultRateLimiter.Middleware)
	routes.RegisterAPIRoutes(limited, apiDeps)
	routes.RegisterAdminRoutes(limited, adminDeps)

	r.NotFound(handler.NotFoundResponse)

	// ==========================================================================
	// Background worker
	// ==========================================================================

	w := worker.NewWorker(orderService, store, worker.Config{
		PollInterval:    cfg.Worker.PollInterval,
		MaxConcurrency:  cfg.Worker.MaxConcurrency,
		PendingOrderTTL: cfg.Worker.PendingOrderTTL,
		GuestCartTTL:    cfg.Worker.GuestCartTTL,
	}, logger)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Worker stopped", "error", err)
		}
	}()

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.CORS(cfg.CORSOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			stop()
			<-workerDone
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	<-workerDone
	logger.Info("Shutdown complete")

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
