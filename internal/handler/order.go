package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

// maxBodySize bounds order request bodies.
const maxBodySize = 1 << 20

const (
	msgOrderPlaced    = "Order placed successfully"
	msgUnauthorized   = "Unauthorized"
	msgMissingDetails = "missing order details."
	msgInvalidCoupon  = "Invalid or expired coupon code"
	msgInvalidBody    = "Invalid request body"
	msgPlaceFailed    = "Failed to place order"
	msgListFailed     = "Failed to fetch orders"
)

// placeOrderBody is the decoded POST /api/orders payload.
type placeOrderBody struct {
	AddressID     string
	PaymentMethod string
	CouponCode    string
	Items         []order.CartItem
}

func (b *placeOrderBody) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "addressId":
			b.AddressID, err = optStr(d)
		case "paymentMethod":
			b.PaymentMethod, err = optStr(d)
		case "couponCode":
			b.CouponCode, err = optStr(d)
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeCartItem(d)
				if err != nil {
					return err
				}
				b.Items = append(b.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
}

// decodeCartItem accepts the product id as either "id" or "productId".
func decodeCartItem(d *jx.Decoder) (order.CartItem, error) {
	var item order.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "productId":
			item.ProductID, err = optStr(d)
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			item.Quantity, err = d.Int()
		default:
			return d.Skip()
		}
		return err
	})
	return item, err
}

// optStr reads a string, treating null as empty.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)
	if !caller.Authenticated() {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	var body placeOrderBody
	if err := body.Decode(jx.DecodeBytes(data)); err != nil {
		zctx.From(ctx).Debug("Invalid order body", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		Caller:        caller,
		AddressID:     body.AddressID,
		Items:         body.Items,
		PaymentMethod: body.PaymentMethod,
		CouponCode:    body.CouponCode,
	})
	if err != nil {
		writePlaceOrderError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msgOrderPlaced)
	e.FieldStart("orderIds")
	e.ArrStart()
	for _, id := range res.OrderIDs {
		e.Str(id)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Num(jx.Num(res.Total.StringFixed(2)))
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// writePlaceOrderError maps a checkout error to its HTTP response.
func writePlaceOrderError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	switch order.KindOf(err) {
	case order.KindUnauthenticated:
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
	case order.KindInvalidRequest:
		var ire *order.InvalidRequestError
		if errors.As(err, &ire) && ire.Missing {
			writeMessage(w, http.StatusMethodNotAllowed, msgMissingDetails)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case order.KindCouponNotFound:
		writeError(w, http.StatusNotFound, msgInvalidCoupon)
	case order.KindCouponIneligible:
		var ie *coupon.IneligibleError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case order.KindProductNotFound:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		lg.Error("Place order failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgPlaceFailed)
	}
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)
	if !caller.Authenticated() {
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	orders, err := h.orders.ListOrders(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, order.ErrUnauthenticated) {
			writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		zctx.From(ctx).Error("List orders failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgListFailed)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("storeId")
	e.Str(o.StoreID)
	e.FieldStart("addressId")
	e.Str(o.AddressID)
	e.FieldStart("total")
	e.Num(jx.Num(o.Total.StringFixed(2)))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("isPaid")
	e.Bool(o.IsPaid)
	e.FieldStart("isCouponUsed")
	e.Bool(o.IsCouponUsed)
	e.FieldStart("coupon")
	coupon.EncodeSnapshot(e, o.Coupon)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))

	e.FieldStart("orderItems")
	e.ArrStart()
	for _, item := range o.Items {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(o.ID)
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("price")
		e.Num(jx.Num(item.Price.StringFixed(2)))
		if item.Product != nil {
			e.FieldStart("product")
			item.Product.Encode(e)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	if a := o.Address; a != nil {
		e.FieldStart("address")
		e.ObjStart()
		for _, f := range [...]struct{ k, v string }{
			{"id", a.ID}, {"userId", a.UserID}, {"name", a.Name}, {"email", a.Email},
			{"street", a.Street}, {"city", a.City}, {"state", a.State}, {"zip", a.Zip},
			{"country", a.Country}, {"phone", a.Phone},
		} {
			e.FieldStart(f.k)
			e.Str(f.v)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}
