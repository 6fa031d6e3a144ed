package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/loyalty"
	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
	"github.com/storefront-labs/checkout/internal/notify"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, lines, subtotal, shipping_fee, discount,
			points_applied, total, shipping_method, coupon_code, voucher_code, voucher_grant_id,
			status, can_cancel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, '')::uuid, $13, $14, $15)`

	insertTimelineSQL = `INSERT INTO order_timeline (id, order_id, status, description, performed_by, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// Conditional writes: each succeeds only when the guarded state still
	// holds at write time, regardless of what the preview observed.
	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
	restockSQL        = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	consumeGrantSQL = `UPDATE voucher_grants SET is_used = TRUE, order_id = $2, used_at = $3
		WHERE id = $1 AND is_used = FALSE`
	releaseGrantSQL = `UPDATE voucher_grants SET is_used = FALSE, order_id = NULL, used_at = NULL
		WHERE id = $1`

	debitBalanceSQL = `UPDATE loyalty_accounts SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2`

	recordCouponUsageSQL = `INSERT INTO coupon_usages (id, coupon_code, user_id, order_id)
		VALUES ($1, $2, $3, $4)`
	incrementCouponUsesSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	insertOutboxSQL = `INSERT INTO outbox_events (id, event_type, payload) VALUES ($1, $2, $3)`

	getOrderSQL = `SELECT id, user_id, lines, subtotal, shipping_fee, discount, points_applied, total,
			shipping_method, coupon_code, voucher_code, COALESCE(voucher_grant_id::text, ''),
			status, can_cancel, created_at,
			confirmed_at, preparing_at, shipped_at, delivered_at, completed_at,
			cancelled_at, delivery_failed_at, return_requested_at, refunded_at
		FROM orders WHERE id = $1`

	getTimelineSQL = `SELECT id, order_id, status, description, performed_by, metadata, created_at
		FROM order_timeline WHERE order_id = $1 ORDER BY created_at, id`

	listStaleNewSQL = `SELECT id, user_id, lines, subtotal, shipping_fee, discount, points_applied, total,
			shipping_method, coupon_code, voucher_code, COALESCE(voucher_grant_id::text, ''),
			status, can_cancel, created_at,
			confirmed_at, preparing_at, shipped_at, delivered_at, completed_at,
			cancelled_at, delivery_failed_at, return_requested_at, refunded_at
		FROM orders WHERE status = 'NEW' AND created_at < $1 ORDER BY created_at`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// orderEventPayload is the stable JSON shape written to the outbox.
type orderEventPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

// Create runs the whole commit pipeline in one transaction: order insert,
// initial timeline entry, conditional stock decrements, conditional voucher
// consumption, points debit, coupon usage record and the outbox event. Any
// conditional write that finds its guard violated aborts the transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, linesJSON, o.Subtotal, o.ShippingFee, o.Discount,
		o.PointsApplied, o.Total, o.ShippingMethod, o.CouponCode, o.VoucherCode,
		o.VoucherGrantID, string(o.Status), o.CanCancel, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	for _, entry := range o.Timeline {
		if err := insertTimelineTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	// Stock is decremented line by line, but failures are collected so the
	// caller gets a complete report before the rollback.
	var unavailable []pricing.UnavailableLine
	for _, l := range o.Lines {
		tag, err := tx.Exec(ctx, decrementStockSQL, l.ProductID, l.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock of %q: %w", l.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			unavailable = append(unavailable, pricing.UnavailableLine{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Reason:    pricing.ReasonInsufficientStock,
			})
		}
	}
	if len(unavailable) > 0 {
		return &pricing.LinesUnavailableError{Lines: unavailable}
	}

	if o.VoucherGrantID != "" {
		tag, err := tx.Exec(ctx, consumeGrantSQL, o.VoucherGrantID, o.ID, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("consuming voucher grant %q: %w", o.VoucherGrantID, err)
		}
		if tag.RowsAffected() == 0 {
			return discount.ErrVoucherAlreadyUsed
		}
	}

	if o.CouponCode != "" {
		if _, err := tx.Exec(ctx, recordCouponUsageSQL, uuid.New().String(), o.CouponCode, o.UserID, o.ID); err != nil {
			return fmt.Errorf("recording usage of coupon %q: %w", o.CouponCode, err)
		}
		tag, err := tx.Exec(ctx, incrementCouponUsesSQL, o.CouponCode)
		if err != nil {
			return fmt.Errorf("incrementing uses of coupon %q: %w", o.CouponCode, err)
		}
		if tag.RowsAffected() == 0 {
			return &discount.RuleError{Code: o.CouponCode, Reason: "coupon usage limit reached"}
		}
	}

	if o.PointsApplied > 0 {
		tag, err := tx.Exec(ctx, debitBalanceSQL, o.UserID, o.PointsApplied)
		if err != nil {
			return fmt.Errorf("debiting points of %q: %w", o.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			return loyalty.ErrInsufficientBalance
		}
		if _, err := tx.Exec(ctx, insertEntrySQL,
			uuid.New().String(), o.UserID, -o.PointsApplied, string(loyalty.KindRedeemed), o.ID,
		); err != nil {
			return fmt.Errorf("inserting redeem entry for %q: %w", o.UserID, err)
		}
	}

	payload, err := json.Marshal(orderEventPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Total:   o.Total.String(),
		Status:  string(o.Status),
	})
	if err != nil {
		return fmt.Errorf("marshaling outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx, insertOutboxSQL, uuid.New().String(), notify.EventOrderCreated, payload); err != nil {
		return fmt.Errorf("inserting outbox event for %q: %w", o.ID, err)
	}

	return tx.Commit(ctx)
}

// GetByID loads an order with its full timeline.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	timelineRows, err := r.pool.Query(ctx, getTimelineSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting timeline of %q: %w", id, err)
	}
	timeline, err := pgx.CollectRows(timelineRows, scanTimelineEntry)
	if err != nil {
		return nil, fmt.Errorf("getting timeline of %q: %w", id, err)
	}
	o.Timeline = timeline
	return o, nil
}

// UpdateStatus applies a transition atomically: the status row update with
// its stamp column, the timeline entry, and the compensation writes when the
// order reaches a reversing terminal state. The update is guarded on the
// status the caller read, so a concurrent transition loses instead of
// silently overwriting the winner.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, from order.Status, entry order.TimelineEntry, comp *order.Compensation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(
		`UPDATE orders SET status = $2, can_cancel = $3, %s = $4 WHERE id = $1 AND status = $5`,
		stampColumn(o.Status),
	)
	tag, err := tx.Exec(ctx, query, o.ID, string(o.Status), o.CanCancel, entry.CreatedAt, string(from))
	if err != nil {
		return fmt.Errorf("updating status of %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.InvalidTransitionError{From: from, To: o.Status}
	}

	if err := insertTimelineTx(ctx, tx, entry); err != nil {
		return err
	}

	if comp != nil {
		if err := applyCompensation(ctx, tx, o.ID, comp); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListStaleNew returns all NEW orders created before the cutoff.
func (r *OrderRepository) ListStaleNew(ctx context.Context, olderThan time.Time) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx, listStaleNewSQL, olderThan)
	if err != nil {
		return nil, fmt.Errorf("listing stale orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing stale orders: %w", err)
	}
	return orders, nil
}

func insertTimelineTx(ctx context.Context, tx pgx.Tx, entry order.TimelineEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling timeline metadata: %w", err)
	}
	_, err = tx.Exec(ctx, insertTimelineSQL,
		entry.ID, entry.OrderID, string(entry.Status), entry.Description,
		entry.PerformedBy, metaJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting timeline entry for %q: %w", entry.OrderID, err)
	}
	return nil
}

func applyCompensation(ctx context.Context, tx pgx.Tx, orderID string, comp *order.Compensation) error {
	for _, l := range comp.Restock {
		if _, err := tx.Exec(ctx, restockSQL, l.ProductID, l.Quantity); err != nil {
			return fmt.Errorf("restocking %q: %w", l.ProductID, err)
		}
	}
	if comp.GrantID != "" {
		if _, err := tx.Exec(ctx, releaseGrantSQL, comp.GrantID); err != nil {
			return fmt.Errorf("releasing voucher grant %q: %w", comp.GrantID, err)
		}
	}
	if comp.PointsRefund > 0 {
		if err := creditTx(ctx, tx, comp.UserID, comp.PointsRefund, loyalty.KindRefund, orderID); err != nil {
			return err
		}
	}
	return nil
}

// stampColumn maps a status to its timestamp column. The returned name is
// interpolated into SQL and must stay a closed set.
func stampColumn(s order.Status) string {
	switch s {
	case order.StatusConfirmed:
		return "confirmed_at"
	case order.StatusPreparing:
		return "preparing_at"
	case order.StatusShippingInProgress:
		return "shipped_at"
	case order.StatusDelivered:
		return "delivered_at"
	case order.StatusCompleted:
		return "completed_at"
	case order.StatusCancelled:
		return "cancelled_at"
	case order.StatusDeliveryFailed:
		return "delivery_failed_at"
	case order.StatusReturnRequested:
		return "return_requested_at"
	case order.StatusRefunded:
		return "refunded_at"
	default:
		return "created_at"
	}
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		status    string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Subtotal, &o.ShippingFee, &o.Discount,
		&o.PointsApplied, &o.Total, &o.ShippingMethod, &o.CouponCode, &o.VoucherCode,
		&o.VoucherGrantID, &status, &o.CanCancel, &o.CreatedAt,
		&o.ConfirmedAt, &o.PreparingAt, &o.ShippedAt, &o.DeliveredAt, &o.CompletedAt,
		&o.CancelledAt, &o.DeliveryFailedAt, &o.ReturnRequestedAt, &o.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshaling order lines: %w", err)
	}
	o.Status = order.Status(status)
	if o.VoucherCode != "" {
		o.DiscountKind = discount.InstrumentVoucher
	} else if o.CouponCode != "" {
		o.DiscountKind = discount.InstrumentCoupon
	}
	return &o, nil
}

func scanTimelineEntry(row pgx.CollectableRow) (order.TimelineEntry, error) {
	var (
		e        order.TimelineEntry
		status   string
		metaJSON []byte
	)
	err := row.Scan(&e.ID, &e.OrderID, &status, &e.Description, &e.PerformedBy, &metaJSON, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
		return e, fmt.Errorf("unmarshaling timeline metadata: %w", err)
	}
	e.Status = order.Status(status)
	return e, nil
}
