package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/loyalty"
	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]catalog.Product
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockDeliveryRepo struct{}

func (m *mockDeliveryRepo) FeeFor(_ context.Context, code string) (decimal.Decimal, error) {
	if code != "STANDARD" {
		return decimal.Zero, catalog.ErrDeliveryMethodNotFound
	}
	return decimal.NewFromInt(20000), nil
}

type mockCouponRepo struct{}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*discount.Coupon, error) {
	return nil, discount.ErrCouponNotFound
}

func (m *mockCouponRepo) UserUsageCount(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) IsUserAllowed(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

type mockVoucherRepo struct{}

func (m *mockVoucherRepo) FindGrant(_ context.Context, _, _ string) (*discount.Grant, *discount.Voucher, error) {
	return nil, nil, discount.ErrVoucherNotFound
}

type mockLedger struct{ balance int64 }

func (m *mockLedger) BalanceOf(_ context.Context, _ string) (int64, error) {
	return m.balance, nil
}

func (m *mockLedger) Credit(_ context.Context, _ string, _ int64, _ loyalty.Kind, _ string) error {
	return nil
}

type mockOrderStore struct {
	orders map[string]*order.Order
}

func (m *mockOrderStore) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderStore) UpdateStatus(_ context.Context, o *order.Order, _ order.Status, _ order.TimelineEntry, _ *order.Compensation) error {
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderStore) ListStaleNew(_ context.Context, _ time.Time) ([]*order.Order, error) {
	return nil, nil
}

// --- Helpers ---

type testEnv struct {
	mux      *http.ServeMux
	products *mockProductRepo
	store    *mockOrderStore
}

func newTestEnv() *testEnv {
	products := &mockProductRepo{byID: map[string]catalog.Product{
		"tshirt": {
			ID: "tshirt", Name: "Classic T-Shirt", Category: "apparel",
			Price: decimal.NewFromInt(100000), DiscountPct: decimal.NewFromInt(10), Stock: 100,
		},
	}}
	store := &mockOrderStore{orders: map[string]*order.Order{}}

	engine := pricing.NewEngine(
		products,
		&mockDeliveryRepo{},
		discount.NewResolver(&mockCouponRepo{}, &mockVoucherRepo{}),
		&mockLedger{balance: 50000},
	)
	metrics, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	h := NewHandler(engine, pricing.NewGuard(engine), order.NewLifecycle(store), metrics)

	return &testEnv{mux: h.Routes(), products: products, store: store}
}

func (env *testEnv) do(t *testing.T, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if uid != "" {
		req.Header.Set(userIDHeader, uid)
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// --- Tests ---

func TestPreview_OK(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"tshirt","quantity":2}],"shippingMethod":"STANDARD"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "180000", body["subtotal"])
	assert.Equal(t, "20000", body["shippingFee"])
	assert.Equal(t, "200000", body["totalAmount"])
}

func TestPreview_MissingUser(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/preview", "",
		`{"lines":[{"productId":"tshirt","quantity":1}]}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPreview_MalformedBody(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/preview", "user-1", `{"lines":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview_UnavailableLines(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"ghost","quantity":1},{"productId":"tshirt","quantity":999}]}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeJSON(t, rec)
	unavailable, ok := body["unavailable"].([]any)
	require.True(t, ok)
	require.Len(t, unavailable, 2)
}

func TestPreview_EmptyCart(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/preview", "user-1", `{"lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrder_EchoedPreviewAccepted(t *testing.T) {
	env := newTestEnv()

	preview := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"tshirt","quantity":2}],"shippingMethod":"STANDARD"}`)
	require.Equal(t, http.StatusOK, preview.Code)

	rec := env.do(t, http.MethodPost, "/api/orders", "user-1", preview.Body.String())

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "NEW", body["status"])
	assert.Equal(t, true, body["canCancel"])
	assert.Equal(t, "200000", body["totalAmount"])
	assert.NotEmpty(t, body["id"])

	timeline, ok := body["timeline"].([]any)
	require.True(t, ok)
	require.Len(t, timeline, 1)
}

func TestPlaceOrder_TamperedTotalRejected(t *testing.T) {
	env := newTestEnv()

	preview := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"tshirt","quantity":2}],"shippingMethod":"STANDARD"}`)
	require.Equal(t, http.StatusOK, preview.Code)

	tampered := decodeJSON(t, preview)
	tampered["totalAmount"] = "1"
	raw, err := json.Marshal(tampered)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/orders", "user-1", string(bytes.TrimSpace(raw)))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "order contents changed, please refresh", body["message"])
	diffs, ok := body["diffs"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, diffs)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/orders/missing", "user-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransitionOrder(t *testing.T) {
	env := newTestEnv()

	preview := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"tshirt","quantity":1}]}`)
	placed := env.do(t, http.MethodPost, "/api/orders", "user-1", preview.Body.String())
	require.Equal(t, http.StatusCreated, placed.Code)
	orderID, _ := decodeJSON(t, placed)["id"].(string)
	require.NotEmpty(t, orderID)

	rec := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/status", "user-1",
		`{"status":"CONFIRMED","performedBy":"admin"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "CONFIRMED", body["status"])

	timeline, ok := body["timeline"].([]any)
	require.True(t, ok)
	require.Len(t, timeline, 2)
}

func TestTransitionOrder_InvalidEdge(t *testing.T) {
	env := newTestEnv()

	preview := env.do(t, http.MethodPost, "/api/orders/preview", "user-1",
		`{"lines":[{"productId":"tshirt","quantity":1}]}`)
	placed := env.do(t, http.MethodPost, "/api/orders", "user-1", preview.Body.String())
	orderID, _ := decodeJSON(t, placed)["id"].(string)

	rec := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/status", "user-1",
		`{"status":"DELIVERED","performedBy":"admin"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec)
	assert.Contains(t, body["message"], "invalid order transition")
}

func TestTransitionOrder_MissingStatus(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/orders/any/status", "user-1", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
