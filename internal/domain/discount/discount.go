// Package discount implements coupon and voucher eligibility and amount
// computation. Coupons are shared rule-based codes; vouchers are pre-assigned
// per-user instruments tracked by a grant record.
package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage applies a percentage of the applicable cart amount.
	TypePercentage Type = "percentage"
	// TypeFixed subtracts a fixed amount, capped at the applicable cart amount.
	TypeFixed Type = "fixed"
)

// Sentinel lookup errors.
var (
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrVoucherNotFound = errors.New("voucher not granted to user")
	// ErrVoucherAlreadyUsed is also raised by the commit pipeline when the
	// conditional grant flag finds the voucher consumed between preview and write.
	ErrVoucherAlreadyUsed = errors.New("voucher already used")
)

// RuleError reports an instrument the user holds but cannot apply right now.
type RuleError struct {
	Code   string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("discount code %s not applicable: %s", e.Code, e.Reason)
}

// Coupon is a shared discount rule identified by its code.
type Coupon struct {
	Code           string
	Type           Type
	Value          decimal.Decimal
	MaxDiscount    decimal.Decimal // zero means uncapped
	MinOrderValue  decimal.Decimal
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         bool
	Public         bool
	UsageLimit     int // zero means unlimited
	UserUsageLimit int
	UsedCount      int
	IncludeProducts   []string
	ExcludeProducts   []string
	IncludeCategories []string
	ExcludeCategories []string
	Description    string
}

// Voucher is the rule shared by all grants of one voucher code.
type Voucher struct {
	Code        string
	Type        Type
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	StartsAt    *time.Time
	EndsAt      *time.Time
	// Products, when non-empty, requires at least one cart line to match.
	Products    []string
	Description string
}

// Grant is the per-user ownership record of a voucher. IsUsed flips one way;
// the consuming order is linked when it does.
type Grant struct {
	ID          string
	UserID      string
	VoucherCode string
	IsUsed      bool
	OrderID     string
}

// Item is a priced cart line as seen by discount computation.
type Item struct {
	ProductID string
	Category  string
	Quantity  int
	LineTotal decimal.Decimal
}

// CouponRepository provides coupon rule and usage lookups.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	UserUsageCount(ctx context.Context, code, userID string) (int, error)
	IsUserAllowed(ctx context.Context, code, userID string) (bool, error)
}

// VoucherRepository resolves a user's grant of a voucher code together with
// the voucher rule itself.
type VoucherRepository interface {
	FindGrant(ctx context.Context, userID, code string) (*Grant, *Voucher, error)
}
