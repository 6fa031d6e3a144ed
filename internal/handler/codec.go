package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/storefront-labs/checkout/internal/domain/order"
	"github.com/storefront-labs/checkout/internal/domain/pricing"
)

// Monetary amounts travel as JSON strings so previews survive the round trip
// through the client without floating-point drift.

func decodeBody(r *http.Request) (*jx.Decoder, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return jx.DecodeBytes(body), nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return v, nil
}

func decodePreviewRequest(d *jx.Decoder, uid string) (pricing.PreviewRequest, error) {
	req := pricing.PreviewRequest{UserID: uid}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				var line pricing.RawLine
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "productId":
						line.ProductID, err = d.Str()
					case "quantity":
						line.Quantity, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				req.Lines = append(req.Lines, line)
				return nil
			})
		case "shippingMethod":
			v, err := d.Str()
			req.ShippingMethod = v
			return err
		case "couponCode":
			v, err := d.Str()
			req.CouponCode = v
			return err
		case "voucherCode":
			v, err := d.Str()
			req.VoucherCode = v
			return err
		case "pointsToApply":
			v, err := d.Int64()
			req.PointsToApply = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodePreview(d *jx.Decoder, uid string) (*pricing.Preview, error) {
	p := &pricing.Preview{UserID: uid}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodePreviewLine(d)
				if err != nil {
					return err
				}
				p.Lines = append(p.Lines, line)
				return nil
			})
		case "shippingMethod":
			p.ShippingMethod, err = d.Str()
		case "couponCode":
			p.CouponCode, err = d.Str()
		case "voucherCode":
			p.VoucherCode, err = d.Str()
		case "pointsRequested":
			p.PointsRequested, err = d.Int64()
		case "subtotal":
			p.Subtotal, err = decodeDecimal(d)
		case "shippingFee":
			p.ShippingFee, err = decodeDecimal(d)
		case "discount":
			p.Discount, err = decodeDecimal(d)
		case "pointsApplied":
			p.PointsApplied, err = d.Int64()
		case "totalAmount":
			p.Total, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func decodePreviewLine(d *jx.Decoder) (pricing.Line, error) {
	var line pricing.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			line.ProductID, err = d.Str()
		case "name":
			line.Name, err = d.Str()
		case "imageUrl":
			line.ImageURL, err = d.Str()
		case "quantity":
			line.Quantity, err = d.Int()
		case "unitPrice":
			line.UnitPrice, err = decodeDecimal(d)
		case "discountPct":
			line.DiscountPct, err = decodeDecimal(d)
		case "lineTotal":
			line.LineTotal, err = decodeDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return line, err
}

type transitionRequest struct {
	Status      order.Status
	Metadata    map[string]string
	PerformedBy string
}

func decodeTransitionRequest(d *jx.Decoder) (transitionRequest, error) {
	var req transitionRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			req.Status = order.Status(v)
			return err
		case "performedBy":
			v, err := d.Str()
			req.PerformedBy = v
			return err
		case "metadata":
			req.Metadata = map[string]string{}
			return d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				req.Metadata[key] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func encodePreview(e *jx.Encoder, p *pricing.Preview) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range p.Lines {
		encodePreviewLine(e, l)
	}
	e.ArrEnd()
	e.FieldStart("shippingMethod")
	e.Str(p.ShippingMethod)
	e.FieldStart("couponCode")
	e.Str(p.CouponCode)
	e.FieldStart("voucherCode")
	e.Str(p.VoucherCode)
	e.FieldStart("pointsRequested")
	e.Int64(p.PointsRequested)
	e.FieldStart("subtotal")
	e.Str(p.Subtotal.String())
	e.FieldStart("shippingFee")
	e.Str(p.ShippingFee.String())
	e.FieldStart("discount")
	e.Str(p.Discount.String())
	e.FieldStart("pointsApplied")
	e.Int64(p.PointsApplied)
	e.FieldStart("totalAmount")
	e.Str(p.Total.String())
	e.ObjEnd()
}

func encodePreviewLine(e *jx.Encoder, l pricing.Line) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("imageUrl")
	e.Str(l.ImageURL)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("unitPrice")
	e.Str(l.UnitPrice.String())
	e.FieldStart("discountPct")
	e.Str(l.DiscountPct.String())
	e.FieldStart("lineTotal")
	e.Str(l.LineTotal.String())
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("canCancel")
	e.Bool(o.CanCancel)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("imageUrl")
		e.Str(l.ImageURL)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		e.Str(l.UnitPrice.String())
		e.FieldStart("discountPct")
		e.Str(l.DiscountPct.String())
		e.FieldStart("lineTotal")
		e.Str(l.LineTotal.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	e.Str(o.Subtotal.String())
	e.FieldStart("shippingFee")
	e.Str(o.ShippingFee.String())
	e.FieldStart("discount")
	e.Str(o.Discount.String())
	e.FieldStart("pointsApplied")
	e.Int64(o.PointsApplied)
	e.FieldStart("totalAmount")
	e.Str(o.Total.String())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.Format(timeFormat))
	e.FieldStart("timeline")
	e.ArrStart()
	for _, t := range o.Timeline {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(t.Status))
		e.FieldStart("description")
		e.Str(t.Description)
		e.FieldStart("performedBy")
		e.Str(t.PerformedBy)
		e.FieldStart("at")
		e.Str(t.CreatedAt.Format(timeFormat))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
