package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeSnapshot writes c as the JSON object stored alongside each order.
// A nil coupon encodes as an empty object.
func EncodeSnapshot(e *jx.Encoder, c *Coupon) {
	e.ObjStart()
	if c != nil {
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("description")
		e.Str(c.Description)
		e.FieldStart("discount")
		e.Num(jx.Num(c.Discount.String()))
		e.FieldStart("forNewUser")
		e.Bool(c.ForNewUser)
		e.FieldStart("forMember")
		e.Bool(c.ForMember)
		e.FieldStart("isPublic")
		e.Bool(c.IsPublic)
		if !c.ExpiresAt.IsZero() {
			e.FieldStart("expiresAt")
			e.Str(c.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}
	e.ObjEnd()
}

// MarshalSnapshot returns the snapshot encoding of c.
func MarshalSnapshot(c *Coupon) []byte {
	var e jx.Encoder
	EncodeSnapshot(&e, c)
	return e.Bytes()
}

// UnmarshalSnapshot decodes a stored snapshot. An empty object yields nil.
func UnmarshalSnapshot(data []byte) (*Coupon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var (
		c     Coupon
		empty = true
	)
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		empty = false
		switch key {
		case "code":
			v, err := d.Str()
			c.Code = v
			return err
		case "description":
			v, err := d.Str()
			c.Description = v
			return err
		case "discount":
			v, err := decodeDecimal(d)
			c.Discount = v
			return err
		case "forNewUser":
			v, err := d.Bool()
			c.ForNewUser = v
			return err
		case "forMember":
			v, err := d.Bool()
			c.ForMember = v
			return err
		case "isPublic":
			v, err := d.Bool()
			c.IsPublic = v
			return err
		case "expiresAt":
			v, err := d.Str()
			if err != nil {
				return err
			}
			c.ExpiresAt, err = time.Parse(time.RFC3339, v)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode coupon snapshot")
	}
	if empty {
		return nil, nil
	}
	return &c, nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}
