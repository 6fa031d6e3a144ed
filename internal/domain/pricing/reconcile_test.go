package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/checkout/internal/domain/discount"
)

func previewCart(t *testing.T, e *Engine, req PreviewRequest) *Preview {
	t.Helper()
	p, err := e.Preview(context.Background(), req)
	require.NoError(t, err)
	return p
}

func TestVerify_MatchingPreviewAccepted(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID:         "user-1",
		Lines:          []RawLine{{ProductID: "tshirt", Quantity: 2}},
		ShippingMethod: "STANDARD",
	})

	server, err := g.Verify(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, client.Total.Equal(server.Total))
	assert.True(t, client.Subtotal.Equal(server.Subtotal))
}

func TestVerify_StaleTotalRejected(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 2}},
	})
	// The client saw an older, cheaper price.
	client.Subtotal = decimal.NewFromInt(160000)
	client.Total = decimal.NewFromInt(160000)
	client.Lines[0].UnitPrice = decimal.NewFromInt(90000)
	client.Lines[0].LineTotal = decimal.NewFromInt(160000)

	_, err := g.Verify(context.Background(), client)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "order contents changed, please refresh", conflict.Error())

	fields := make(map[string]bool, len(conflict.Diffs))
	for _, d := range conflict.Diffs {
		fields[d.Field] = true
	}
	assert.True(t, fields["subtotal"])
	assert.True(t, fields["totalAmount"])
	assert.True(t, fields["lines[0].unitPrice"])
	assert.True(t, fields["lines[0].lineTotal"])
}

func TestVerify_StaleDiscountRejected(t *testing.T) {
	vouchers := &mockVoucherRepo{
		grant:   &discount.Grant{ID: "grant-1"},
		voucher: &discount.Voucher{Code: "BDAY20K", Type: discount.TypeFixed, Value: decimal.NewFromInt(20000)},
	}
	e := newEngine(testProducts(), &mockCouponRepo{}, vouchers, &mockLedger{})
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID:      "user-1",
		Lines:       []RawLine{{ProductID: "tshirt", Quantity: 2}},
		VoucherCode: "BDAY20K",
	})
	// Voucher value shrank between preview and submit.
	vouchers.voucher.Value = decimal.NewFromInt(10000)

	_, err := g.Verify(context.Background(), client)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotEmpty(t, conflict.Diffs)
	assert.Equal(t, "discount", conflict.Diffs[0].Field)
	assert.Equal(t, "20000", conflict.Diffs[0].Client)
	assert.Equal(t, "10000", conflict.Diffs[0].Server)
}

func TestVerify_LineCountMismatch(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 1}},
	})
	client.Lines = append(client.Lines, client.Lines[0])

	_, err := g.Verify(context.Background(), client)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestVerify_StockExhaustedSurfacesUnavailable(t *testing.T) {
	products := testProducts()
	e := newEngine(products, &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "cap", Quantity: 2}},
	})

	// Someone else bought the remaining stock.
	p := products.byID["cap"]
	p.Stock = 1
	products.byID["cap"] = p

	_, err := g.Verify(context.Background(), client)

	var luErr *LinesUnavailableError
	require.ErrorAs(t, err, &luErr)
	require.Len(t, luErr.Lines, 1)
	assert.Equal(t, ReasonInsufficientStock, luErr.Lines[0].Reason)
}

func TestVerify_PointsRecomputedFromRequest(t *testing.T) {
	ledger := &mockLedger{balance: 50000}
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, ledger)
	g := NewGuard(e)

	client := previewCart(t, e, PreviewRequest{
		UserID:        "user-1",
		Lines:         []RawLine{{ProductID: "tshirt", Quantity: 2}},
		PointsToApply: 50000,
	})
	require.Equal(t, int64(50000), client.PointsApplied)

	// Balance dropped after preview; the echoed pointsApplied is now stale.
	ledger.balance = 20000

	_, err := g.Verify(context.Background(), client)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	fields := make(map[string]bool, len(conflict.Diffs))
	for _, d := range conflict.Diffs {
		fields[d.Field] = true
	}
	assert.True(t, fields["pointsApplied"])
	assert.True(t, fields["totalAmount"])
}
