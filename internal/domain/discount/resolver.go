package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InstrumentKind names which kind of instrument produced a discount.
type InstrumentKind string

const (
	InstrumentCoupon  InstrumentKind = "coupon"
	InstrumentVoucher InstrumentKind = "voucher"
)

// Applied is the outcome of resolving a discount instrument against a cart.
type Applied struct {
	Kind        InstrumentKind
	Code        string
	GrantID     string // set for vouchers, consumed at commit time
	Amount      decimal.Decimal
	Description string
}

// Resolver computes discount eligibility and amounts for coupons and vouchers.
type Resolver struct {
	coupons  CouponRepository
	vouchers VoucherRepository
	now      func() time.Time
}

// NewResolver creates a Resolver backed by the given repositories.
func NewResolver(coupons CouponRepository, vouchers VoucherRepository) *Resolver {
	return &Resolver{coupons: coupons, vouchers: vouchers, now: time.Now}
}

// ResolveCoupon validates the coupon rule for the user and cart and returns
// the computed discount. A cart below the coupon's minimum order value yields
// a zero amount rather than an error.
func (r *Resolver) ResolveCoupon(ctx context.Context, userID, code string, items []Item) (*Applied, error) {
	c, err := r.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := r.now()
	switch {
	case !c.Active:
		return nil, &RuleError{Code: code, Reason: "coupon is inactive"}
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return nil, &RuleError{Code: code, Reason: "coupon is not active yet"}
	case c.EndsAt != nil && now.After(*c.EndsAt):
		return nil, &RuleError{Code: code, Reason: "coupon expired"}
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return nil, &RuleError{Code: code, Reason: "coupon usage limit reached"}
	}

	if c.UserUsageLimit > 0 {
		used, err := r.coupons.UserUsageCount(ctx, code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= c.UserUsageLimit {
			return nil, &RuleError{Code: code, Reason: "per-user usage limit reached"}
		}
	}

	if !c.Public {
		allowed, err := r.coupons.IsUserAllowed(ctx, code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "check coupon audience")
		}
		if !allowed {
			return nil, &RuleError{Code: code, Reason: "coupon not available to this user"}
		}
	}

	subtotal := itemsTotal(items)
	if subtotal.LessThan(c.MinOrderValue) {
		// Below minimum order value the coupon simply does not qualify.
		return &Applied{Kind: InstrumentCoupon, Code: code, Amount: decimal.Zero, Description: c.Description}, nil
	}

	applicable := applicableAmount(c, items)
	var amount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		amount = applicable.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, c.MaxDiscount)
		}
	case TypeFixed:
		amount = decimal.Min(c.Value, applicable)
	default:
		return nil, errors.Errorf("unsupported discount type: %q", c.Type)
	}

	return &Applied{
		Kind:        InstrumentCoupon,
		Code:        code,
		Amount:      floorAtZero(amount).Round(2),
		Description: c.Description,
	}, nil
}

// ResolveVoucher validates the user's grant of the voucher code and returns
// the computed discount. Unlike coupons, any ineligibility is an error: the
// caller asked for a specific instrument and must learn it cannot be used.
func (r *Resolver) ResolveVoucher(ctx context.Context, userID, code string, items []Item) (*Applied, error) {
	grant, v, err := r.vouchers.FindGrant(ctx, userID, code)
	if err != nil {
		if errors.Is(err, ErrVoucherNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, errors.Wrap(err, "lookup voucher grant")
	}

	if grant.IsUsed {
		return nil, ErrVoucherAlreadyUsed
	}

	now := r.now()
	switch {
	case v.StartsAt != nil && now.Before(*v.StartsAt):
		return nil, &RuleError{Code: code, Reason: "voucher is not active yet"}
	case v.EndsAt != nil && now.After(*v.EndsAt):
		return nil, &RuleError{Code: code, Reason: "voucher expired"}
	}

	subtotal := itemsTotal(items)
	if subtotal.LessThan(v.MinPurchase) {
		return nil, &RuleError{Code: code, Reason: "order below voucher minimum purchase"}
	}

	// Restriction list uses first-match-any semantics: one matching line
	// makes the whole cart eligible.
	if len(v.Products) > 0 && !anyLineMatches(v.Products, items) {
		return nil, &RuleError{Code: code, Reason: "no eligible product in cart"}
	}

	var amount decimal.Decimal
	switch v.Type {
	case TypePercentage:
		amount = subtotal.Mul(v.Value).Div(hundred)
	case TypeFixed:
		amount = decimal.Min(v.Value, subtotal)
	default:
		return nil, errors.Errorf("unsupported discount type: %q", v.Type)
	}

	return &Applied{
		Kind:        InstrumentVoucher,
		Code:        code,
		GrantID:     grant.ID,
		Amount:      floorAtZero(amount).Round(2),
		Description: v.Description,
	}, nil
}

// applicableAmount sums the line totals that count toward the coupon base.
// With include sets only matching (and not excluded) lines count; otherwise
// the whole cart counts minus excluded lines.
func applicableAmount(c *Coupon, items []Item) decimal.Decimal {
	restricted := len(c.IncludeProducts) > 0 || len(c.IncludeCategories) > 0

	sum := decimal.Zero
	for _, it := range items {
		if contains(c.ExcludeProducts, it.ProductID) || contains(c.ExcludeCategories, it.Category) {
			continue
		}
		if restricted && !contains(c.IncludeProducts, it.ProductID) && !contains(c.IncludeCategories, it.Category) {
			continue
		}
		sum = sum.Add(it.LineTotal)
	}
	return sum
}

func anyLineMatches(products []string, items []Item) bool {
	for _, it := range items {
		if contains(products, it.ProductID) {
			return true
		}
	}
	return false
}

func itemsTotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
