package catalog

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry with its live price, running promotion and
// remaining stock. Orders never reference it directly; they keep a priced
// snapshot of these fields instead.
type Product struct {
	ID          string
	Name        string
	Category    string
	ImageURL    string
	Price       decimal.Decimal
	DiscountPct decimal.Decimal
	Stock       int
}

// Repository provides read access to the product catalog. Lookups are always
// batched: pricing resolves whole carts, never single products.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
