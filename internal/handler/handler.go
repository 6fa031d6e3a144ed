// Package handler exposes the checkout core over HTTP. Requests and
// responses are encoded with jx; all business decisions stay in the domain
// packages and only the error-to-status mapping lives here.
package handler

import (
	"net/http"

	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
)

// userIDHeader carries the authenticated user identity, established by the
// auth layer in front of this service.
const userIDHeader = "X-User-ID"

// Handler serves the checkout API.
type Handler struct {
	engine    *pricing.Engine
	guard     *pricing.Guard
	lifecycle *order.Lifecycle
	metrics   *Metrics
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(engine *pricing.Engine, guard *pricing.Guard, lifecycle *order.Lifecycle, metrics *Metrics) *Handler {
	return &Handler{
		engine:    engine,
		guard:     guard,
		lifecycle: lifecycle,
		metrics:   metrics,
	}
}

// Routes registers all API endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders/preview", h.Preview)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.TransitionOrder)
	return mux
}

func userID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}
