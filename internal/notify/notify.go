// Package notify delivers order events to downstream consumers through a
// transactional outbox: the commit pipeline writes the event row in the same
// transaction as the order, and a relay dispatches pending rows later. Core
// correctness never depends on delivery succeeding.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types emitted by the checkout core.
const (
	EventOrderCreated = "order.created"
)

// Event is one outbox row awaiting dispatch.
type Event struct {
	ID         string
	Type       string
	Payload    []byte
	RetryCount int
	CreatedAt  time.Time
}

// Gateway is the one-way, best-effort notification transport.
type Gateway interface {
	Emit(ctx context.Context, e Event) error
}

// Store is the persistence port for outbox rows.
type Store interface {
	LockPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// LogGateway emits events to the log. It stands in for a real push/email
// transport in development and tests.
type LogGateway struct {
	lg *zap.Logger
}

// NewLogGateway creates a Gateway that logs every event.
func NewLogGateway(lg *zap.Logger) *LogGateway {
	return &LogGateway{lg: lg}
}

// Emit logs the event and always succeeds.
func (g *LogGateway) Emit(_ context.Context, e Event) error {
	g.lg.Info("notification",
		zap.String("event_id", e.ID),
		zap.String("type", e.Type),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}
