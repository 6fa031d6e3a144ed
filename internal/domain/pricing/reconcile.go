package pricing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Guard re-derives a client-submitted preview server-side and rejects on any
// mismatch. On success the server-computed preview is the trusted object; the
// client's numbers are discarded once validated.
type Guard struct {
	engine *Engine
}

// NewGuard creates a Guard backed by the given pricing engine.
func NewGuard(engine *Engine) *Guard {
	return &Guard{engine: engine}
}

// Verify extracts the raw inputs embedded in the client preview, recomputes
// the preview, and diffs every total and every line field. Any difference
// yields a ConflictError and nothing is applied.
func (g *Guard) Verify(ctx context.Context, client *Preview) (*Preview, error) {
	raw := make([]RawLine, len(client.Lines))
	for i, l := range client.Lines {
		raw[i] = RawLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	server, err := g.engine.Preview(ctx, PreviewRequest{
		UserID:         client.UserID,
		Lines:          raw,
		ShippingMethod: client.ShippingMethod,
		CouponCode:     client.CouponCode,
		VoucherCode:    client.VoucherCode,
		PointsToApply:  client.PointsRequested,
	})
	if err != nil {
		return nil, err
	}

	var diffs []FieldDiff
	diffs = appendDecimalDiff(diffs, "subtotal", client.Subtotal, server.Subtotal)
	diffs = appendDecimalDiff(diffs, "shippingFee", client.ShippingFee, server.ShippingFee)
	diffs = appendDecimalDiff(diffs, "discount", client.Discount, server.Discount)
	diffs = appendIntDiff(diffs, "pointsApplied", client.PointsApplied, server.PointsApplied)
	diffs = appendDecimalDiff(diffs, "totalAmount", client.Total, server.Total)

	if len(client.Lines) != len(server.Lines) {
		diffs = append(diffs, FieldDiff{
			Field:  "lines",
			Client: strconv.Itoa(len(client.Lines)),
			Server: strconv.Itoa(len(server.Lines)),
		})
	} else {
		for i := range client.Lines {
			diffs = appendLineDiffs(diffs, i, client.Lines[i], server.Lines[i])
		}
	}

	if len(diffs) > 0 {
		return nil, &ConflictError{Diffs: diffs}
	}
	return server, nil
}

func appendLineDiffs(diffs []FieldDiff, i int, client, server Line) []FieldDiff {
	prefix := fmt.Sprintf("lines[%d].", i)
	if client.Name != server.Name {
		diffs = append(diffs, FieldDiff{Field: prefix + "name", Client: client.Name, Server: server.Name})
	}
	diffs = appendDecimalDiff(diffs, prefix+"unitPrice", client.UnitPrice, server.UnitPrice)
	diffs = appendDecimalDiff(diffs, prefix+"discountPct", client.DiscountPct, server.DiscountPct)
	diffs = appendIntDiff(diffs, prefix+"quantity", int64(client.Quantity), int64(server.Quantity))
	diffs = appendDecimalDiff(diffs, prefix+"lineTotal", client.LineTotal, server.LineTotal)
	return diffs
}

func appendDecimalDiff(diffs []FieldDiff, field string, client, server decimal.Decimal) []FieldDiff {
	if client.Equal(server) {
		return diffs
	}
	return append(diffs, FieldDiff{Field: field, Client: client.String(), Server: server.String()})
}

func appendIntDiff(diffs []FieldDiff, field string, client, server int64) []FieldDiff {
	if client == server {
		return diffs
	}
	return append(diffs, FieldDiff{
		Field:  field,
		Client: strconv.FormatInt(client, 10),
		Server: strconv.FormatInt(server, 10),
	})
}
