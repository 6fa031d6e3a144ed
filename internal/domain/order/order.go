// Package order owns the order aggregate: its priced line snapshots, the
// lifecycle state machine, the append-only timeline, and the commit pipeline
// that consumes stock, discount instruments and loyalty points exactly once.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/discount"
)

// ErrNotFound is returned when an order lookup finds no match.
var ErrNotFound = errors.New("order not found")

// Actors recorded on timeline entries.
const (
	ActorSystem = "system"
	ActorAdmin  = "admin"
)

// Line is an immutable priced snapshot of one ordered product, decoupled
// from the live catalog entry.
type Line struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	ImageURL    string          `json:"imageUrl"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	DiscountPct decimal.Decimal `json:"discountPct"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// TimelineEntry is one immutable audit record, appended on creation and on
// every transition. Its persisted shape is stable: it is the audited record
// of what happened to the order.
type TimelineEntry struct {
	ID          string
	OrderID     string
	Status      Status
	Description string
	PerformedBy string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Order is the aggregate produced by a successful placement. It is mutated
// only through lifecycle transitions and never deleted.
type Order struct {
	ID             string
	UserID         string
	Lines          []Line
	Subtotal       decimal.Decimal
	ShippingFee    decimal.Decimal
	Discount       decimal.Decimal
	PointsApplied  int64
	Total          decimal.Decimal
	ShippingMethod string
	CouponCode     string
	VoucherCode    string
	VoucherGrantID string
	DiscountKind   discount.InstrumentKind
	Status         Status
	CanCancel      bool
	Timeline       []TimelineEntry
	CreatedAt      time.Time

	ConfirmedAt       *time.Time
	PreparingAt       *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	DeliveryFailedAt  *time.Time
	ReturnRequestedAt *time.Time
	RefundedAt        *time.Time
}

// Compensation describes the forward consumption to reverse when an order
// reaches CANCELLED or REFUNDED: restock every line, release the voucher
// grant, credit back applied points.
type Compensation struct {
	UserID       string
	Restock      []Line
	GrantID      string
	PointsRefund int64
}

// Store is the persistence port for orders. Create runs the entire commit
// pipeline in one transaction; UpdateStatus applies a transition, its
// timeline entry, and an optional compensation atomically, writing only when
// the stored status still equals from.
type Store interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, o *Order, from Status, entry TimelineEntry, comp *Compensation) error
	ListStaleNew(ctx context.Context, olderThan time.Time) ([]*Order, error)
}
