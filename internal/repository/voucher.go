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

const findGrantSQL = `SELECT g.id, g.user_id, g.voucher_code, g.is_used, COALESCE(g.order_id::text, ''),
		v.code, v.discount_type, v.value, v.min_purchase, v.starts_at, v.ends_at, v.products, v.description
	FROM voucher_grants g
	JOIN vouchers v ON v.code = g.voucher_code
	WHERE g.user_id = $1 AND UPPER(g.voucher_code) = UPPER($2)`

var _ discount.VoucherRepository = (*VoucherRepository)(nil)

// VoucherRepository implements discount.VoucherRepository backed by PostgreSQL.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

// FindGrant resolves the user's grant of the voucher code together with the
// voucher rule. Returns discount.ErrVoucherNotFound when the user holds no
// grant for the code.
func (r *VoucherRepository) FindGrant(ctx context.Context, userID, code string) (*discount.Grant, *discount.Voucher, error) {
	var (
		g            discount.Grant
		v            discount.Voucher
		discountType string
		value        decimal.Decimal
		minPurchase  decimal.Decimal
		startsAt     *time.Time
		endsAt       *time.Time
	)
	err := r.pool.QueryRow(ctx, findGrantSQL, userID, code).Scan(
		&g.ID, &g.UserID, &g.VoucherCode, &g.IsUsed, &g.OrderID,
		&v.Code, &discountType, &value, &minPurchase, &startsAt, &endsAt, &v.Products, &v.Description,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, discount.ErrVoucherNotFound
		}
		return nil, nil, fmt.Errorf("finding voucher grant %q for %q: %w", code, userID, err)
	}
	v.Type = discount.Type(discountType)
	v.Value = value
	v.MinPurchase = minPurchase
	v.StartsAt = startsAt
	v.EndsAt = endsAt
	return &g, &v, nil
}
