// Package worker runs the periodic cleanup sweeps: cancelling pending
// orders whose payment never settled and deleting abandoned guest carts.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/licensa/internal/domain"
	"github.com/dukerupert/licensa/internal/telemetry"
)

// Job names, used as log and metric labels.
const (
	JobExpirePendingOrders = "expire_pending_orders"
	JobDeleteGuestCarts    = "delete_guest_carts"
)

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often each sweep runs
	PollInterval time.Duration

	// MaxConcurrency is the maximum number of sweeps running at once
	MaxConcurrency int

	// PendingOrderTTL is how long a provider-paid order may stay pending
	// before it is cancelled and its stock released
	PendingOrderTTL time.Duration

	// GuestCartTTL is how long an untouched guest cart is kept
	GuestCartTTL time.Duration

	// BatchSize bounds the orders cancelled per sweep
	BatchSize int
}

// GuestCartStore deletes guest carts not updated since before.
// repository.Querier satisfies it.
type GuestCartStore interface {
	DeleteStaleGuestCarts(ctx context.Context, before time.Time) (int64, error)
}

type job struct {
	name    string
	run     func(ctx context.Context) (int, error)
	running atomic.Bool
}

// Worker runs the sweeps on a ticker
type Worker struct {
	config Config
	jobs   []*job
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewWorker creates a new background worker
func NewWorker(orders domain.OrderService, carts GuestCartStore, config Config, logger *slog.Logger) *Worker {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = time.Minute
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 2
	}
	if config.PendingOrderTTL == 0 {
		config.PendingOrderTTL = time.Hour
	}
	if config.GuestCartTTL == 0 {
		config.GuestCartTTL = 30 * 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
		now:    time.Now,
	}
	w.jobs = []*job{
		{
			name: JobExpirePendingOrders,
			run: func(ctx context.Context) (int, error) {
				return orders.ExpireStalePending(ctx, w.config.PendingOrderTTL, w.config.BatchSize)
			},
		},
		{
			name: JobDeleteGuestCarts,
			run: func(ctx context.Context) (int, error) {
				n, err := carts.DeleteStaleGuestCarts(ctx, w.now().Add(-w.config.GuestCartTTL))
				return int(n), err
			},
		},
	}
	return w
}

// Start runs the sweeps until the context is cancelled, then waits for
// in-flight sweeps to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"poll_interval", w.config.PollInterval,
		"max_concurrency", w.config.MaxConcurrency,
		"pending_order_ttl", w.config.PendingOrderTTL,
		"guest_cart_ttl", w.config.GuestCartTTL,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.config.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			w.wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			for _, j := range w.jobs {
				// A sweep still running from the previous tick is skipped.
				if !j.running.CompareAndSwap(false, true) {
					continue
				}
				select {
				case sem <- struct{}{}:
					w.wg.Add(1)
					go func(j *job) {
						defer func() {
							<-sem
							j.running.Store(false)
							w.wg.Done()
						}()
						w.runJob(ctx, j)
					}(j)
				default:
					j.running.Store(false)
				}
			}
		}
	}
}

// RunOnce runs every sweep once, sequentially, and returns the first error.
func (w *Worker) RunOnce(ctx context.Context) error {
	var first error
	for _, j := range w.jobs {
		if err := w.runJob(ctx, j); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (w *Worker) runJob(ctx context.Context, j *job) error {
	start := time.Now()
	n, err := j.run(ctx)

	result := "ok"
	if err != nil {
		result = "error"
		w.logger.Error("sweep failed", "job", j.name, "swept", n, "error", err)
	} else if n > 0 {
		w.logger.Info("sweep completed", "job", j.name, "swept", n, "duration", time.Since(start))
	} else {
		w.logger.Debug("sweep completed", "job", j.name)
	}

	if telemetry.Business != nil {
		telemetry.Business.WorkerSweeps.WithLabelValues(j.name, result).Inc()
		if n > 0 {
			telemetry.Business.WorkerSweptItems.WithLabelValues(j.name).Add(float64(n))
		}
	}
	return err
}
