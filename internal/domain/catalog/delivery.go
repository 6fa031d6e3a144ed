package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDeliveryMethodNotFound is returned when a shipping method code is unknown.
var ErrDeliveryMethodNotFound = errors.New("delivery method not found")

// DeliveryMethod is a shipping option with its flat fee.
type DeliveryMethod struct {
	Code string
	Name string
	Fee  decimal.Decimal
}

// DeliveryRepository provides fee lookup for shipping methods.
type DeliveryRepository interface {
	FeeFor(ctx context.Context, code string) (decimal.Decimal, error)
}
