package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
)

const getProductsByIDsSQL = `SELECT id, name, category, image_url, price, discount_pct, stock
	FROM products WHERE id = ANY($1)`

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns products matching any of the given IDs in a single query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p           catalog.Product
		price       decimal.Decimal
		discountPct decimal.Decimal
		stock       int32
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.ImageURL, &price, &discountPct, &stock)
	p.Price = price
	p.DiscountPct = discountPct
	p.Stock = int(stock)
	return p, err
}
