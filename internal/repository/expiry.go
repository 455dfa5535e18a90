package repository

import (
	"context"
	"time"

	"casedesk/internal/model"
	"casedesk/pkg/metrics"

	"go.uber.org/zap"
)

// ExpirySweeper periodically removes notifications older than
// model.RetentionPeriod from stores that have no native TTL.
type ExpirySweeper struct {
	store    Expirer
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(store Expirer, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		store:    store,
		logger:   logger,
		interval: time.Hour,
		now:      time.Now,
	}
}

// WithInterval sets the sweep interval.
func (s *ExpirySweeper) WithInterval(interval time.Duration) *ExpirySweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// WithClock replaces the time source used to compute the cutoff.
func (s *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	s.now = now
	return s
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("Starting notification expiry sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", model.RetentionPeriod),
	)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Notification expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass and returns the number of removed records.
func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	cutoff := s.now().UTC().Add(-model.RetentionPeriod)
	deleted, err := s.store.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to sweep expired notifications",
			zap.Time("cutoff", cutoff),
			zap.Error(err),
		)
		return 0
	}

	if deleted > 0 {
		metrics.AddNotificationExpired(deleted)
		s.logger.Info("Expired notifications removed",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted
}
