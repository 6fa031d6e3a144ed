package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-labs/checkout/internal/notify"
)

const (
	// A crashed relay leaves claimed rows in_progress; rows locked longer
	// than the stale interval are claimed again on a later pass.
	lockPendingSQL = `UPDATE outbox_events SET status = 'in_progress', locked_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			   OR (status = 'in_progress' AND locked_at < now() - $2::interval)
			ORDER BY created_at LIMIT $1
			FOR UPDATE SKIP LOCKED)
		RETURNING id, event_type, payload, retry_count, created_at`

	markSentSQL = `UPDATE outbox_events SET status = 'sent', sent_at = now()
		WHERE id = ANY($1)`

	markFailedSQL = `UPDATE outbox_events
		SET status = 'pending', retry_count = retry_count + 1, last_error = $2
		WHERE id = $1`
)

// staleLockInterval is how long a claimed event may sit in_progress before it
// is considered abandoned and eligible for reclaim.
const staleLockInterval = 5 * time.Minute

var _ notify.Store = (*OutboxRepository)(nil)

// OutboxRepository implements notify.Store backed by PostgreSQL. Pending rows
// are claimed with SKIP LOCKED so multiple relays never double-dispatch.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// LockPending claims up to limit events for dispatch: pending rows plus any
// in_progress rows whose claim went stale.
func (r *OutboxRepository) LockPending(ctx context.Context, limit int) ([]notify.Event, error) {
	rows, err := r.pool.Query(ctx, lockPendingSQL, limit, staleLockInterval)
	if err != nil {
		return nil, fmt.Errorf("locking pending events: %w", err)
	}
	return pgx.CollectRows(rows, scanEvent)
}

// MarkSent marks the given events as delivered.
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []string) error {
	if _, err := r.pool.Exec(ctx, markSentSQL, ids); err != nil {
		return fmt.Errorf("marking events sent: %w", err)
	}
	return nil
}

// MarkFailed returns the event to the pending set with its failure recorded,
// so a later pass retries it.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	if _, err := r.pool.Exec(ctx, markFailedSQL, id, reason); err != nil {
		return fmt.Errorf("marking event %q failed: %w", id, err)
	}
	return nil
}

func scanEvent(row pgx.CollectableRow) (notify.Event, error) {
	var e notify.Event
	err := row.Scan(&e.ID, &e.Type, &e.Payload, &e.RetryCount, &e.CreatedAt)
	return e, err
}
