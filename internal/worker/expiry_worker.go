package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"go.uber.org/zap"
)

// Expirer cancels stale unpaid bookings
type Expirer interface {
	ExpirePendingBookings(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between scans
	ScanInterval time.Duration
	// PendingTTL is how long an unpaid booking may hold its slots
	PendingTTL time.Duration
	// BatchSize is the number of bookings expired per scan
	BatchSize int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: time.Minute,
		PendingTTL:   30 * time.Minute,
		BatchSize:    100,
	}
}

// ExpiryWorker periodically releases slots held by unpaid pending bookings
type ExpiryWorker struct {
	expirer   Expirer
	config    *ExpiryWorkerConfig
	log       *logger.Logger
	scheduler gocron.Scheduler
	mu        sync.Mutex
	running   bool
	ctx       context.Context

	// Stats
	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// ExpiryWorkerStats is a snapshot of worker activity
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(expirer Expirer, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}
	return &ExpiryWorker{
		expirer: expirer,
		config:  config,
		log:     logger.Get().With(zap.String("component", "expiry_worker")),
	}
}

// Start schedules the scan and runs the first one immediately. The scan stops
// when ctx is canceled or Stop is called.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("expiry worker already running")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(w.config.ScanInterval),
		gocron.NewTask(w.scan),
		gocron.WithName("expire-pending-bookings"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule expiry job: %w", err)
	}

	w.ctx = ctx
	w.scheduler = scheduler
	w.running = true
	scheduler.Start()

	w.log.Info("expiry worker started",
		zap.Duration("interval", w.config.ScanInterval),
		zap.Duration("pending_ttl", w.config.PendingTTL),
		zap.Int("batch_size", w.config.BatchSize),
	)
	return nil
}

// Stop waits for a running scan and stops scheduling
func (w *ExpiryWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	scheduler := w.scheduler
	w.mu.Unlock()

	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	w.log.Info("expiry worker stopped")
	return nil
}

// scan expires one batch of stale bookings
func (w *ExpiryWorker) scan() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	n, err := w.expirer.ExpirePendingBookings(ctx, w.config.PendingTTL, w.config.BatchSize)

	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.lastExpiredCount = n
	w.totalExpired += int64(n)
	w.mu.Unlock()

	if err != nil {
		w.log.Error("failed to expire pending bookings", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("expired pending bookings", zap.Int("count", n))
	}
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}
