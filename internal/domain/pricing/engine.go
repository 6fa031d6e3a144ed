package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/loyalty"
)

// Validation errors for preview requests.
var (
	ErrEmptyLines     = errors.New("lines required")
	ErrTwoInstruments = errors.New("only one discount instrument may be applied per order")
	ErrNegativePoints = errors.New("points to apply must not be negative")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

var (
	hundred    = decimal.NewFromInt(100)
	twoHundred = decimal.NewFromInt(200)
)

// PreviewRequest holds the raw inputs for computing a preview.
type PreviewRequest struct {
	UserID         string
	Lines          []RawLine
	ShippingMethod string
	CouponCode     string
	VoucherCode    string
	PointsToApply  int64
}

// Engine computes authoritative previews from raw carts. It only reads
// catalog, discount and ledger state; it has no side effects.
type Engine struct {
	products catalog.Repository
	delivery catalog.DeliveryRepository
	resolver *discount.Resolver
	ledger   loyalty.Ledger
}

// NewEngine creates a pricing Engine with the required collaborators.
func NewEngine(
	products catalog.Repository,
	delivery catalog.DeliveryRepository,
	resolver *discount.Resolver,
	ledger loyalty.Ledger,
) *Engine {
	return &Engine{
		products: products,
		delivery: delivery,
		resolver: resolver,
		ledger:   ledger,
	}
}

// Preview resolves every line, prices the cart, applies at most one discount
// instrument and caps requested loyalty points. Unfulfillable lines are
// collected into a single LinesUnavailableError rather than failing fast.
func (e *Engine) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	if req.CouponCode != "" && req.VoucherCode != "" {
		return nil, ErrTwoInstruments
	}
	if req.PointsToApply < 0 {
		return nil, ErrNegativePoints
	}

	ids := make([]string, len(req.Lines))
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
		ids[i] = l.ProductID
	}

	fetched, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Resolve all lines before reporting anything: the caller gets a
	// complete unavailability report, never a partial preview.
	var unavailable []UnavailableLine
	lines := make([]Line, 0, len(req.Lines))
	subtotal := decimal.Zero
	for _, raw := range req.Lines {
		p, ok := byID[raw.ProductID]
		if !ok {
			unavailable = append(unavailable, UnavailableLine{
				ProductID: raw.ProductID,
				Quantity:  raw.Quantity,
				Reason:    ReasonNotFound,
			})
			continue
		}
		if p.Stock < raw.Quantity {
			unavailable = append(unavailable, UnavailableLine{
				ProductID: raw.ProductID,
				Quantity:  raw.Quantity,
				Reason:    ReasonInsufficientStock,
			})
			continue
		}

		lineTotal := lineTotal(p.Price, p.DiscountPct, raw.Quantity)
		lines = append(lines, Line{
			ProductID:   p.ID,
			Name:        p.Name,
			ImageURL:    p.ImageURL,
			Quantity:    raw.Quantity,
			UnitPrice:   p.Price,
			DiscountPct: p.DiscountPct,
			LineTotal:   lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}
	if len(unavailable) > 0 {
		return nil, &LinesUnavailableError{Lines: unavailable}
	}

	shippingFee := decimal.Zero
	if req.ShippingMethod != "" {
		fee, err := e.delivery.FeeFor(ctx, req.ShippingMethod)
		if err != nil {
			return nil, errors.Wrapf(err, "shipping fee for %q", req.ShippingMethod)
		}
		shippingFee = fee
	}

	items := make([]discount.Item, len(lines))
	for i, l := range lines {
		items[i] = discount.Item{
			ProductID: l.ProductID,
			Category:  byID[l.ProductID].Category,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		}
	}

	discountAmount := decimal.Zero
	var kind discount.InstrumentKind
	var grantID string
	switch {
	case req.VoucherCode != "":
		applied, err := e.resolver.ResolveVoucher(ctx, req.UserID, req.VoucherCode, items)
		if err != nil {
			return nil, err
		}
		discountAmount = applied.Amount
		kind = applied.Kind
		grantID = applied.GrantID
	case req.CouponCode != "":
		applied, err := e.resolver.ResolveCoupon(ctx, req.UserID, req.CouponCode, items)
		if err != nil {
			return nil, err
		}
		discountAmount = applied.Amount
		kind = applied.Kind
	}

	payable := subtotal.Add(shippingFee).Sub(discountAmount)
	if payable.IsNegative() {
		payable = decimal.Zero
	}

	pointsApplied, err := e.capPoints(ctx, req.UserID, req.PointsToApply, payable)
	if err != nil {
		return nil, err
	}

	total := payable.Sub(decimal.NewFromInt(pointsApplied))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return &Preview{
		UserID:          req.UserID,
		Lines:           lines,
		ShippingMethod:  req.ShippingMethod,
		CouponCode:      req.CouponCode,
		VoucherCode:     req.VoucherCode,
		VoucherGrantID:  grantID,
		DiscountKind:    kind,
		PointsRequested: req.PointsToApply,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		Discount:        discountAmount,
		PointsApplied:   pointsApplied,
		Total:           total.Round(2),
	}, nil
}

// capPoints clamps the requested points to the user's balance and to half the
// payable amount, rounded down to the nearest hundred. Points are never
// forced: a zero request or zero balance yields zero, not an error.
func (e *Engine) capPoints(ctx context.Context, userID string, requested int64, payable decimal.Decimal) (int64, error) {
	if requested == 0 {
		return 0, nil
	}

	balance, err := e.ledger.BalanceOf(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "point balance")
	}

	// floor(0.5 * payable / 100) * 100
	maxRedeemable := payable.Div(twoHundred).Floor().Mul(hundred).IntPart()

	applied := requested
	if balance < applied {
		applied = balance
	}
	if maxRedeemable < applied {
		applied = maxRedeemable
	}
	if applied < 0 {
		applied = 0
	}
	return applied, nil
}

// lineTotal computes price * (1 - discountPct/100) * quantity rounded to
// two decimal places.
func lineTotal(price, discountPct decimal.Decimal, quantity int) decimal.Decimal {
	factor := hundred.Sub(discountPct).Div(hundred)
	return price.Mul(factor).Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
