package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/storefront-labs/checkout/internal/domain/pricing"
)

// Lifecycle drives orders through creation and state transitions.
type Lifecycle struct {
	store Store
	now   func() time.Time
}

// NewLifecycle creates a Lifecycle backed by the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

// Place commits a trusted preview as a NEW order. The store runs the whole
// pipeline in one transaction: order insert, conditional stock decrements,
// conditional voucher-grant flag, points debit and the outbox event. Any
// conditional failure aborts the whole placement.
func (l *Lifecycle) Place(ctx context.Context, trusted *pricing.Preview) (*Order, error) {
	now := l.now()

	lines := make([]Line, len(trusted.Lines))
	for i, pl := range trusted.Lines {
		lines[i] = Line{
			ProductID:   pl.ProductID,
			Name:        pl.Name,
			ImageURL:    pl.ImageURL,
			Quantity:    pl.Quantity,
			UnitPrice:   pl.UnitPrice,
			DiscountPct: pl.DiscountPct,
			LineTotal:   pl.LineTotal,
		}
	}

	o := &Order{
		ID:             uuid.New().String(),
		UserID:         trusted.UserID,
		Lines:          lines,
		Subtotal:       trusted.Subtotal,
		ShippingFee:    trusted.ShippingFee,
		Discount:       trusted.Discount,
		PointsApplied:  trusted.PointsApplied,
		Total:          trusted.Total,
		ShippingMethod: trusted.ShippingMethod,
		CouponCode:     trusted.CouponCode,
		VoucherCode:    trusted.VoucherCode,
		VoucherGrantID: trusted.VoucherGrantID,
		DiscountKind:   trusted.DiscountKind,
		Status:         StatusNew,
		CanCancel:      true,
		CreatedAt:      now,
	}
	o.Timeline = []TimelineEntry{{
		ID:          uuid.New().String(),
		OrderID:     o.ID,
		Status:      StatusNew,
		Description: describe(StatusNew, nil),
		PerformedBy: trusted.UserID,
		CreatedAt:   now,
	}}

	if err := l.store.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// Get loads an order with its timeline.
func (l *Lifecycle) Get(ctx context.Context, orderID string) (*Order, error) {
	return l.store.GetByID(ctx, orderID)
}

// Transition moves an order along one edge of the lifecycle table. It stamps
// the status-specific timestamp, appends an immutable timeline entry, flips
// canCancel off when preparation starts, and reverses forward consumption
// when the order reaches CANCELLED or REFUNDED.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, next Status, metadata map[string]string, performedBy string) (*Order, error) {
	o, err := l.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	from := o.Status
	now := l.now()
	o.Status = next
	l.stamp(o, next, now)
	if next == StatusPreparing {
		// Once preparation starts, direct cancellation is closed; anything
		// later goes through the return flow.
		o.CanCancel = false
	}

	entry := TimelineEntry{
		ID:          uuid.New().String(),
		OrderID:     o.ID,
		Status:      next,
		Description: describe(next, metadata),
		PerformedBy: performedBy,
		Metadata:    metadata,
		CreatedAt:   now,
	}

	var comp *Compensation
	if next == StatusCancelled || next == StatusRefunded {
		comp = &Compensation{
			UserID:       o.UserID,
			Restock:      o.Lines,
			GrantID:      o.VoucherGrantID,
			PointsRefund: o.PointsApplied,
		}
	}

	if err := l.store.UpdateStatus(ctx, o, from, entry, comp); err != nil {
		return nil, errors.Wrapf(err, "transition order %s to %s", orderID, next)
	}
	o.Timeline = append(o.Timeline, entry)
	return o, nil
}

func (l *Lifecycle) stamp(o *Order, status Status, at time.Time) {
	switch status {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusPreparing:
		o.PreparingAt = &at
	case StatusShippingInProgress:
		o.ShippedAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCompleted:
		o.CompletedAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	case StatusDeliveryFailed:
		o.DeliveryFailedAt = &at
	case StatusReturnRequested:
		o.ReturnRequestedAt = &at
	case StatusRefunded:
		o.RefundedAt = &at
	}
}
