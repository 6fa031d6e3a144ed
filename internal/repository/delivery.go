package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
)

const feeForMethodSQL = `SELECT fee FROM delivery_methods WHERE code = $1`

var _ catalog.DeliveryRepository = (*DeliveryRepository)(nil)

// DeliveryRepository implements catalog.DeliveryRepository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// FeeFor returns the flat fee for the given shipping method code.
func (r *DeliveryRepository) FeeFor(ctx context.Context, code string) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := r.pool.QueryRow(ctx, feeForMethodSQL, code).Scan(&fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, catalog.ErrDeliveryMethodNotFound
		}
		return decimal.Zero, fmt.Errorf("getting fee for method %q: %w", code, err)
	}
	return fee, nil
}
