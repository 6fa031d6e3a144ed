// Package pricing turns a raw cart into an authoritative priced preview and
// verifies client-echoed previews before they are committed as orders.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/discount"
)

// RawLine is an unpriced cart entry as submitted by the client.
type RawLine struct {
	ProductID string
	Quantity  int
}

// Line is a fully priced cart line. Name, price and discount are snapshots
// of the catalog at preview time, decoupled from the live product.
type Line struct {
	ProductID   string
	Name        string
	ImageURL    string
	Quantity    int
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	LineTotal   decimal.Decimal
}

// Preview is a fully priced, not-yet-committed representation of an order.
// It embeds the raw inputs it was computed from so the server can re-derive
// it during reconciliation.
type Preview struct {
	UserID          string
	Lines           []Line
	ShippingMethod  string
	CouponCode      string
	VoucherCode     string
	VoucherGrantID  string
	DiscountKind    discount.InstrumentKind
	PointsRequested int64

	Subtotal      decimal.Decimal
	ShippingFee   decimal.Decimal
	Discount      decimal.Decimal
	PointsApplied int64
	Total         decimal.Decimal
}

// Unavailability reasons recorded per failing line.
const (
	ReasonNotFound          = "product not found"
	ReasonInsufficientStock = "insufficient stock"
)

// UnavailableLine describes one cart line that cannot be fulfilled.
type UnavailableLine struct {
	ProductID string
	Quantity  int
	Reason    string
}

// LinesUnavailableError batches every failing line so the caller can correct
// the whole cart in one round trip.
type LinesUnavailableError struct {
	Lines []UnavailableLine
}

func (e *LinesUnavailableError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = fmt.Sprintf("%s: %s", l.ProductID, l.Reason)
	}
	return "lines unavailable: " + strings.Join(parts, "; ")
}

// FieldDiff records one mismatching field found during reconciliation.
type FieldDiff struct {
	Field  string
	Client string
	Server string
}

// ConflictError reports that a client-submitted preview no longer matches the
// freshly computed one. The whole operation is rejected; nothing is applied.
type ConflictError struct {
	Diffs []FieldDiff
}

func (e *ConflictError) Error() string {
	return "order contents changed, please refresh"
}
