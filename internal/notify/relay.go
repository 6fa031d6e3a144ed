package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Relay polls the outbox and dispatches pending events through the gateway.
// Failed dispatches are marked and retried on a later pass.
type Relay struct {
	store    Store
	gateway  Gateway
	interval time.Duration
	batch    int
	lg       *zap.Logger
}

// NewRelay creates a Relay polling at the given interval.
func NewRelay(store Store, gateway Gateway, interval time.Duration, lg *zap.Logger) *Relay {
	return &Relay{
		store:    store,
		gateway:  gateway,
		interval: interval,
		batch:    100,
		lg:       lg,
	}
}

// Run dispatches on every tick until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Dispatch(ctx); err != nil {
				r.lg.Error("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

// Dispatch locks one batch of pending events and emits them. Events that
// fail to emit are marked failed individually; the rest are marked sent.
func (r *Relay) Dispatch(ctx context.Context) error {
	events, err := r.store.LockPending(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	sent := make([]string, 0, len(events))
	for _, e := range events {
		if err := r.gateway.Emit(ctx, e); err != nil {
			r.lg.Warn("event emit failed",
				zap.String("event_id", e.ID),
				zap.String("type", e.Type),
				zap.Error(err),
			)
			if err := r.store.MarkFailed(ctx, e.ID, err.Error()); err != nil {
				r.lg.Error("mark event failed", zap.String("event_id", e.ID), zap.Error(err))
			}
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return err
		}
	}
	return nil
}
