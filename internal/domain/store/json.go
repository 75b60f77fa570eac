package store

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// Encode encodes s as the public catalog JSON object.
func (s *Store) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("userId")
	e.Str(s.UserID)
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("username")
	e.Str(s.Username)
	e.FieldStart("description")
	e.Str(s.Description)
	e.FieldStart("address")
	e.Str(s.Address)
	e.FieldStart("logo")
	e.Str(s.Logo)
	e.FieldStart("email")
	e.Str(s.Email)
	e.FieldStart("contact")
	e.Str(s.Contact)
	e.FieldStart("status")
	e.Str(s.Status)
	e.FieldStart("isActive")
	e.Bool(s.IsActive)
	if !s.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(s.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	e.FieldStart("Product")
	e.ArrStart()
	for i := range s.Products {
		s.Products[i].Encode(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Decode decodes a catalog object produced by Encode.
func (s *Store) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			s.ID, err = d.Str()
		case "userId":
			s.UserID, err = d.Str()
		case "name":
			s.Name, err = d.Str()
		case "username":
			s.Username, err = d.Str()
		case "description":
			s.Description, err = d.Str()
		case "address":
			s.Address, err = d.Str()
		case "logo":
			s.Logo, err = d.Str()
		case "email":
			s.Email, err = d.Str()
		case "contact":
			s.Contact, err = d.Str()
		case "status":
			s.Status, err = d.Str()
		case "isActive":
			s.IsActive, err = d.Bool()
		case "createdAt":
			s.CreatedAt, err = product.DecodeTime(d)
		case "Product":
			s.Products = s.Products[:0]
			err = d.Arr(func(d *jx.Decoder) error {
				var p Product
				if err := p.Decode(d); err != nil {
					return err
				}
				s.Products = append(s.Products, p)
				return nil
			})
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode store field %q", key)
		}
		return nil
	})
}

// Encode encodes p with its ratings nested under "rating".
func (p *Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	p.Product.EncodeFields(e)
	e.FieldStart("rating")
	e.ArrStart()
	for i := range p.Ratings {
		p.Ratings[i].Encode(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Decode decodes a product object produced by Encode.
func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key == "rating" {
			p.Ratings = p.Ratings[:0]
			return d.Arr(func(d *jx.Decoder) error {
				var r Rating
				if err := r.Decode(d); err != nil {
					return err
				}
				p.Ratings = append(p.Ratings, r)
				return nil
			})
		}
		ok, err := p.Product.DecodeField(d, key)
		if err != nil || ok {
			return err
		}
		return d.Skip()
	})
}

// Encode encodes r as a JSON object.
func (r *Rating) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("userId")
	e.Str(r.UserID)
	e.FieldStart("productId")
	e.Str(r.ProductID)
	e.FieldStart("orderId")
	e.Str(r.OrderID)
	e.FieldStart("rating")
	e.Int(r.Rating)
	e.FieldStart("review")
	e.Str(r.Review)
	if !r.CreatedAt.IsZero() {
		e.FieldStart("createdAt")
		e.Str(r.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	e.ObjEnd()
}

// Decode decodes a rating object.
func (r *Rating) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			r.ID, err = d.Str()
		case "userId":
			r.UserID, err = d.Str()
		case "productId":
			r.ProductID, err = d.Str()
		case "orderId":
			r.OrderID, err = d.Str()
		case "rating":
			r.Rating, err = d.Int()
		case "review":
			r.Review, err = d.Str()
		case "createdAt":
			r.CreatedAt, err = product.DecodeTime(d)
		default:
			return d.Skip()
		}
		return err
	})
}
