package product

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode encodes p as a JSON object.
func (p *Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	p.EncodeFields(e)
	e.ObjEnd()
}

// EncodeFields writes the product fields into an object already started by
// the caller.
func (p *Product) EncodeFields(e *jx.Encoder) {
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("storeId")
	e.Str(p.StoreID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("mrp")
	e.Num(jx.Num(p.MRP.String()))
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("inStock")
	e.Bool(p.InStock)
	if !p.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(p.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
}

// DecodeField decodes the value of key into p. It reports false for keys
// that are not product fields, leaving the value unread.
func (p *Product) DecodeField(d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "id":
		p.ID, err = d.Str()
	case "storeId":
		p.StoreID, err = d.Str()
	case "name":
		p.Name, err = d.Str()
	case "description":
		p.Description, err = d.Str()
	case "mrp":
		p.MRP, err = DecodeDecimal(d)
	case "price":
		p.Price, err = DecodeDecimal(d)
	case "images":
		p.Images = p.Images[:0]
		err = d.Arr(func(d *jx.Decoder) error {
			s, err := d.Str()
			p.Images = append(p.Images, s)
			return err
		})
	case "category":
		p.Category, err = d.Str()
	case "inStock":
		p.InStock, err = d.Bool()
	case "createdAt":
		p.CreatedAt, err = DecodeTime(d)
	default:
		return false, nil
	}
	if err != nil {
		return true, errors.Wrapf(err, "decode field %q", key)
	}
	return true, nil
}

// Decode decodes a JSON object into p, skipping unknown fields.
func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		ok, err := p.DecodeField(d, key)
		if err != nil || ok {
			return err
		}
		return d.Skip()
	})
}

// DecodeDecimal reads a JSON number or numeric string.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
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

// DecodeTime reads an RFC 3339 timestamp string.
func DecodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
