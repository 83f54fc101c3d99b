// Package sweeper persists the expiry of lapsed pending reservations. Reads already treat
// such reservations as expired; the sweep only brings stored rows in line and emits the
// expiry events.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

type Expirer interface {
	ExpirePending(ctx context.Context, now time.Time, limit int) (int, error)
}

type Worker struct {
	store     Expirer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewWorker(store Expirer, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{
		store:     store,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("expiry sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce drains lapsed reservations batch by batch and returns how many were expired.
func (w *Worker) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	now := w.now()
	for {
		n, err := w.store.ExpirePending(ctx, now, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.batchSize {
			break
		}
	}
	if total > 0 {
		w.logger.Info("expired pending reservations", "count", total)
	}
	return total, nil
}
