package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/discount"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, value, max_discount, min_order_value,
		starts_at, ends_at, active, public, usage_limit, user_usage_limit, used_count,
		include_products, exclude_products, include_categories, exclude_categories, description
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	countUserUsageSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_code = $1 AND user_id = $2`

	isUserAllowedSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_audience WHERE coupon_code = $1 AND user_id = $2)`
)

var _ discount.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements discount.CouponRepository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns discount.ErrCouponNotFound when no matching coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*discount.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// UserUsageCount returns how many times the user has consumed the coupon.
func (r *CouponRepository) UserUsageCount(ctx context.Context, code, userID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, countUserUsageSQL, code, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %q by %q: %w", code, userID, err)
	}
	return count, nil
}

// IsUserAllowed reports whether the user is on the coupon's allow list.
func (r *CouponRepository) IsUserAllowed(ctx context.Context, code, userID string) (bool, error) {
	var allowed bool
	if err := r.pool.QueryRow(ctx, isUserAllowedSQL, code, userID).Scan(&allowed); err != nil {
		return false, fmt.Errorf("checking audience of coupon %q for %q: %w", code, userID, err)
	}
	return allowed, nil
}

func scanCoupon(row pgx.CollectableRow) (discount.Coupon, error) {
	var (
		c              discount.Coupon
		discountType   string
		value          decimal.Decimal
		maxDiscount    decimal.Decimal
		minOrderValue  decimal.Decimal
		startsAt       *time.Time
		endsAt         *time.Time
		usageLimit     int32
		userUsageLimit int32
		usedCount      int32
	)
	err := row.Scan(
		&c.Code, &discountType, &value, &maxDiscount, &minOrderValue,
		&startsAt, &endsAt, &c.Active, &c.Public, &usageLimit, &userUsageLimit, &usedCount,
		&c.IncludeProducts, &c.ExcludeProducts, &c.IncludeCategories, &c.ExcludeCategories,
		&c.Description,
	)
	c.Type = discount.Type(discountType)
	c.Value = value
	c.MaxDiscount = maxDiscount
	c.MinOrderValue = minOrderValue
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	c.UsageLimit = int(usageLimit)
	c.UserUsageLimit = int(userUsageLimit)
	c.UsedCount = int(usedCount)
	return c, err
}
