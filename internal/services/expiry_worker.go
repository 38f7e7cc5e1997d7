package services

import (
	"context"
	"log/slog"
	"time"
)

const expiryBatchSize = 500

// ExpiryWorker periodically expires CLICKED referrals that never converted.
type ExpiryWorker struct {
	lifecycle *LifecycleService
	maxAge    time.Duration
	interval  time.Duration
	batch     int
	logger    *slog.Logger
	now       func() time.Time
}

func NewExpiryWorker(lifecycle *LifecycleService, expiryDays int, interval time.Duration, logger *slog.Logger) *ExpiryWorker {
	if expiryDays <= 0 {
		expiryDays = defaultPendingAfterDays
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		lifecycle: lifecycle,
		maxAge:    time.Duration(expiryDays) * 24 * time.Hour,
		interval:  interval,
		batch:     expiryBatchSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.logger.Info("Expiry worker starting", "interval", w.interval.String(), "max_age", w.maxAge.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Expiry sweep failed", "error", err)
			}
		case <-ctx.Done():
			w.logger.Info("Expiry worker stopping")
			return
		}
	}
}

// RunOnce expires every stale referral in batches and returns the total.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.maxAge)
	total := 0
	for {
		n, err := w.lifecycle.ExpireStale(ctx, cutoff, w.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batch || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		w.logger.Info("Expired stale referrals", "count", total)
	}
	return total, nil
}
