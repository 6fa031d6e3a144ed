package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/storefront-labs/checkout/internal/domain/catalog"
	"github.com/storefront-labs/checkout/internal/domain/discount"
	"github.com/storefront-labs/checkout/internal/domain/loyalty"
	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
)

// writeDomainError maps domain errors onto the HTTP taxonomy: validation and
// business-rule failures are 400, missing references 404, stale previews and
// unavailable lines 409, everything unexpected 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		linesErr      *pricing.LinesUnavailableError
		conflictErr   *pricing.ConflictError
		quantityErr   *pricing.InvalidQuantityError
		ruleErr       *discount.RuleError
		transitionErr *order.InvalidTransitionError
	)

	switch {
	case errors.As(err, &linesErr):
		writeLinesUnavailable(w, linesErr)
	case errors.As(err, &conflictErr):
		writeConflict(w, conflictErr)
	case errors.As(err, &quantityErr),
		errors.Is(err, pricing.ErrEmptyLines),
		errors.Is(err, pricing.ErrTwoInstruments),
		errors.Is(err, pricing.ErrNegativePoints):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &ruleErr),
		errors.As(err, &transitionErr),
		errors.Is(err, discount.ErrVoucherAlreadyUsed),
		errors.Is(err, loyalty.ErrInsufficientBalance):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrDeliveryMethodNotFound),
		errors.Is(err, discount.ErrCouponNotFound),
		errors.Is(err, discount.ErrVoucherNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeLinesUnavailable(w http.ResponseWriter, lerr *pricing.LinesUnavailableError) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusConflict)
	e.FieldStart("message")
	e.Str("some lines cannot be fulfilled")
	e.FieldStart("unavailable")
	e.ArrStart()
	for _, l := range lerr.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("reason")
		e.Str(l.Reason)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusConflict, &e)
}

func writeConflict(w http.ResponseWriter, cerr *pricing.ConflictError) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusConflict)
	e.FieldStart("message")
	e.Str(cerr.Error())
	e.FieldStart("diffs")
	e.ArrStart()
	for _, d := range cerr.Diffs {
		e.ObjStart()
		e.FieldStart("field")
		e.Str(d.Field)
		e.FieldStart("client")
		e.Str(d.Client)
		e.FieldStart("server")
		e.Str(d.Server)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusConflict, &e)
}
