package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/internal/metrics"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/retry"
	"go.uber.org/zap"
)

// DefaultStoreRetryConfig bounds retries of transient store failures
func DefaultStoreRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// unitOfWork runs a transaction and re-runs it from scratch on transient
// store errors. fn must reset anything it captures because it may execute
// more than once.
type unitOfWork struct {
	store repository.Store
	retry *retry.Retrier
	log   *logger.Logger
}

func newUnitOfWork(store repository.Store, cfg *retry.Config, log *logger.Logger) *unitOfWork {
	if cfg == nil {
		cfg = DefaultStoreRetryConfig()
	}
	c := *cfg
	c.ShouldRetry = database.IsTransient
	return &unitOfWork{store: store, retry: retry.New(&c), log: log}
}

func (u *unitOfWork) run(ctx context.Context, operation string, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	result := u.retry.DoWithCallback(ctx, func(ctx context.Context) error {
		return u.store.WithinTx(ctx, fn)
	}, func(attempt int, err error, next time.Duration) {
		metrics.RecordTransientStoreError(ctx, operation)
		u.log.WarnContext(ctx, "transient store error, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})
	return result.Err
}
