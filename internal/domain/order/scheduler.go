package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AutoConfirm promotes NEW orders left untouched past a threshold to
// CONFIRMED. It runs on a fixed interval with an injectable clock so tests
// can simulate the threshold deterministically.
type AutoConfirm struct {
	lifecycle *Lifecycle
	store     Store
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	lg        *zap.Logger
}

// NewAutoConfirm creates the scheduler. Interval is how often the sweep runs,
// threshold is the minimum age of a NEW order before promotion.
func NewAutoConfirm(lifecycle *Lifecycle, store Store, interval, threshold time.Duration, lg *zap.Logger) *AutoConfirm {
	return &AutoConfirm{
		lifecycle: lifecycle,
		store:     store,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		lg:        lg,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (s *AutoConfirm) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			promoted, err := s.Sweep(ctx)
			if err != nil {
				s.lg.Error("auto-confirm sweep failed", zap.Error(err))
				continue
			}
			if promoted > 0 {
				s.lg.Info("auto-confirmed stale orders", zap.Int("promoted", promoted))
			}
		}
	}
}

// Sweep promotes every NEW order older than the threshold and returns the
// number promoted. A failure on one order is logged and does not abort the
// sweep; promoted orders leave the NEW set and are not revisited.
func (s *AutoConfirm) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.threshold)

	stale, err := s.store.ListStaleNew(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, o := range stale {
		if _, err := s.lifecycle.Transition(ctx, o.ID, StatusConfirmed, nil, ActorSystem); err != nil {
			s.lg.Warn("auto-confirm skipped order",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
			continue
		}
		promoted++
	}
	return promoted, nil
}
