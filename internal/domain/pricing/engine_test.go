package pricing

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/loyalty"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]catalog.Product
	getErr error
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDeliveryRepo struct {
	fees map[string]decimal.Decimal
}

func (m *mockDeliveryRepo) FeeFor(_ context.Context, code string) (decimal.Decimal, error) {
	fee, ok := m.fees[code]
	if !ok {
		return decimal.Zero, catalog.ErrDeliveryMethodNotFound
	}
	return fee, nil
}

type mockCouponRepo struct {
	coupon *discount.Coupon
	err    error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*discount.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.coupon, nil
}

func (m *mockCouponRepo) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) IsUserAllowed(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

type mockVoucherRepo struct {
	grant   *discount.Grant
	voucher *discount.Voucher
	err     error
}

func (m *mockVoucherRepo) FindGrant(_ context.Context, _, _ string) (*discount.Grant, *discount.Voucher, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.grant, m.voucher, nil
}

type mockLedger struct {
	balance int64
	err     error
}

func (m *mockLedger) BalanceOf(_ context.Context, _ string) (int64, error) {
	return m.balance, m.err
}

func (m *mockLedger) Credit(_ context.Context, _ string, _ int64, _ loyalty.Kind, _ string) error {
	return nil
}

// --- Helpers ---

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testProducts() *mockProductRepo {
	return &mockProductRepo{byID: map[string]catalog.Product{
		"tshirt": {
			ID: "tshirt", Name: "Classic T-Shirt", Category: "apparel",
			Price: money(100000), DiscountPct: money(10), Stock: 100,
		},
		"cap": {
			ID: "cap", Name: "Baseball Cap", Category: "accessories",
			Price: money(85000), DiscountPct: decimal.Zero, Stock: 2,
		},
	}}
}

func testDelivery() *mockDeliveryRepo {
	return &mockDeliveryRepo{fees: map[string]decimal.Decimal{
		"STANDARD": money(20000),
	}}
}

func newEngine(products catalog.Repository, coupons discount.CouponRepository, vouchers discount.VoucherRepository, ledger loyalty.Ledger) *Engine {
	return NewEngine(products, testDelivery(), discount.NewResolver(coupons, vouchers), ledger)
}

// --- Tests ---

func TestPreview_EmptyLines(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{UserID: "user-1"})
	require.ErrorIs(t, err, ErrEmptyLines)
}

func TestPreview_InvalidQuantity(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "tshirt", iqErr.ProductID)
}

func TestPreview_TwoInstrumentsRejected(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID:      "user-1",
		Lines:       []RawLine{{ProductID: "tshirt", Quantity: 1}},
		CouponCode:  "SAVE10",
		VoucherCode: "BDAY20K",
	})
	require.ErrorIs(t, err, ErrTwoInstruments)
}

func TestPreview_NegativePoints(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID:        "user-1",
		Lines:         []RawLine{{ProductID: "tshirt", Quantity: 1}},
		PointsToApply: -100,
	})
	require.ErrorIs(t, err, ErrNegativePoints)
}

func TestPreview_PlainCart(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 2}},
	})

	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	// 100000 with 10% off, times two.
	assert.True(t, money(90000).Equal(p.Lines[0].LineTotal.Div(decimal.NewFromInt(2))))
	assert.True(t, money(180000).Equal(p.Subtotal))
	assert.True(t, p.ShippingFee.IsZero())
	assert.True(t, money(180000).Equal(p.Total))
}

func TestPreview_VoucherWithShipping(t *testing.T) {
	vouchers := &mockVoucherRepo{
		grant: &discount.Grant{ID: "grant-1", UserID: "user-1", VoucherCode: "BDAY20K"},
		voucher: &discount.Voucher{
			Code:  "BDAY20K",
			Type:  discount.TypeFixed,
			Value: money(20000),
		},
	}
	e := newEngine(testProducts(), &mockCouponRepo{}, vouchers, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:         "user-1",
		Lines:          []RawLine{{ProductID: "tshirt", Quantity: 2}},
		ShippingMethod: "STANDARD",
		VoucherCode:    "BDAY20K",
	})

	require.NoError(t, err)
	assert.True(t, money(180000).Equal(p.Subtotal))
	assert.True(t, money(20000).Equal(p.ShippingFee))
	assert.True(t, money(20000).Equal(p.Discount))
	assert.True(t, money(180000).Equal(p.Total))
	assert.Equal(t, "grant-1", p.VoucherGrantID)
	assert.Equal(t, discount.InstrumentVoucher, p.DiscountKind)
}

func TestPreview_UnavailableLinesBatched(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines: []RawLine{
			{ProductID: "tshirt", Quantity: 1},
			{ProductID: "ghost", Quantity: 1},
			{ProductID: "cap", Quantity: 5},
		},
	})

	var luErr *LinesUnavailableError
	require.ErrorAs(t, err, &luErr)
	require.Len(t, luErr.Lines, 2)
	assert.Equal(t, "ghost", luErr.Lines[0].ProductID)
	assert.Equal(t, ReasonNotFound, luErr.Lines[0].Reason)
	assert.Equal(t, "cap", luErr.Lines[1].ProductID)
	assert.Equal(t, ReasonInsufficientStock, luErr.Lines[1].Reason)
}

func TestPreview_UnknownShippingMethod(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID:         "user-1",
		Lines:          []RawLine{{ProductID: "tshirt", Quantity: 1}},
		ShippingMethod: "TELEPORT",
	})
	require.ErrorIs(t, err, catalog.ErrDeliveryMethodNotFound)
}

func TestPreview_PointsCappedByBalance(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{balance: 50000})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:        "user-1",
		Lines:         []RawLine{{ProductID: "tshirt", Quantity: 2}},
		PointsToApply: 60000,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(50000), p.PointsApplied)
	assert.True(t, money(130000).Equal(p.Total))
}

func TestPreview_PointsCappedByHalfPayable(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{balance: 500000})

	// Payable 180000: cap is floor(90000/100)*100 = 90000.
	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:        "user-1",
		Lines:         []RawLine{{ProductID: "tshirt", Quantity: 2}},
		PointsToApply: 150000,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(90000), p.PointsApplied)
	assert.True(t, money(90000).Equal(p.Total))
}

func TestPreview_PointsCapRoundsDownToHundred(t *testing.T) {
	products := &mockProductRepo{byID: map[string]catalog.Product{
		"cap": {ID: "cap", Name: "Baseball Cap", Price: money(85050), DiscountPct: decimal.Zero, Stock: 10},
	}}
	e := NewEngine(products, testDelivery(), discount.NewResolver(&mockCouponRepo{}, &mockVoucherRepo{}), &mockLedger{balance: 500000})

	// Payable 85050: half is 42525, rounded down to 42500.
	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:        "user-1",
		Lines:         []RawLine{{ProductID: "cap", Quantity: 1}},
		PointsToApply: 80000,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42500), p.PointsApplied)
}

func TestPreview_ZeroPointsSkipsBalanceLookup(t *testing.T) {
	e := newEngine(testProducts(), &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{err: errors.New("ledger down")})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 1}},
	})
	require.NoError(t, err)
}

func TestPreview_CouponApplied(t *testing.T) {
	coupons := &mockCouponRepo{coupon: &discount.Coupon{
		Code:   "SAVE10",
		Type:   discount.TypePercentage,
		Value:  money(10),
		Active: true,
		Public: true,
	}}
	e := newEngine(testProducts(), coupons, &mockVoucherRepo{}, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:     "user-1",
		Lines:      []RawLine{{ProductID: "tshirt", Quantity: 2}},
		CouponCode: "SAVE10",
	})

	require.NoError(t, err)
	assert.True(t, money(18000).Equal(p.Discount))
	assert.True(t, money(162000).Equal(p.Total))
	assert.Equal(t, discount.InstrumentCoupon, p.DiscountKind)
}

func TestPreview_CouponExcludeCategorySkipsLine(t *testing.T) {
	coupons := &mockCouponRepo{coupon: &discount.Coupon{
		Code:              "NOTAPPAREL",
		Type:              discount.TypePercentage,
		Value:             money(10),
		Active:            true,
		Public:            true,
		ExcludeCategories: []string{"apparel"},
	}}
	e := newEngine(testProducts(), coupons, &mockVoucherRepo{}, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines: []RawLine{
			{ProductID: "tshirt", Quantity: 2},
			{ProductID: "cap", Quantity: 1},
		},
		CouponCode: "NOTAPPAREL",
	})

	require.NoError(t, err)
	// Only the cap (85000) is eligible; the apparel line is excluded.
	assert.True(t, money(8500).Equal(p.Discount))
}

func TestPreview_CouponIncludeCategoryRestrictsBase(t *testing.T) {
	coupons := &mockCouponRepo{coupon: &discount.Coupon{
		Code:              "CAPS10",
		Type:              discount.TypePercentage,
		Value:             money(10),
		Active:            true,
		Public:            true,
		IncludeCategories: []string{"accessories"},
	}}
	e := newEngine(testProducts(), coupons, &mockVoucherRepo{}, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines: []RawLine{
			{ProductID: "tshirt", Quantity: 2},
			{ProductID: "cap", Quantity: 1},
		},
		CouponCode: "CAPS10",
	})

	require.NoError(t, err)
	assert.True(t, money(8500).Equal(p.Discount))
}

func TestPreview_TotalFlooredAtZero(t *testing.T) {
	coupons := &mockCouponRepo{coupon: &discount.Coupon{
		Code:   "ALLFREE",
		Type:   discount.TypeFixed,
		Value:  money(999999),
		Active: true,
		Public: true,
	}}
	e := newEngine(testProducts(), coupons, &mockVoucherRepo{}, &mockLedger{})

	p, err := e.Preview(context.Background(), PreviewRequest{
		UserID:     "user-1",
		Lines:      []RawLine{{ProductID: "tshirt", Quantity: 1}},
		CouponCode: "ALLFREE",
	})

	require.NoError(t, err)
	assert.True(t, p.Total.IsZero())
}

func TestPreview_ProductFetchErrorWrapped(t *testing.T) {
	products := &mockProductRepo{getErr: errors.New("db down")}
	e := newEngine(products, &mockCouponRepo{}, &mockVoucherRepo{}, &mockLedger{})

	_, err := e.Preview(context.Background(), PreviewRequest{
		UserID: "user-1",
		Lines:  []RawLine{{ProductID: "tshirt", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get products")
}
