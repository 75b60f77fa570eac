package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// ShippingFee is charged once per checkout to callers without membership.
var ShippingFee = decimal.NewFromInt(5)

// Quote is the priced breakdown of one store group.
type Quote struct {
	StoreID     string
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	// Total is Subtotal - Discount + ShippingFee rounded to 2 decimal places.
	Total decimal.Decimal
}

// Subtotal returns the sum of unit price times quantity over the group.
func (g Group) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range g.Lines {
		sum = sum.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Item.Quantity))))
	}
	return sum
}

// PriceGroups prices every group. The coupon, when present, discounts each
// group by its percentage. Non-members pay ShippingFee on the first group
// only.
func PriceGroups(groups []Group, c *coupon.Coupon, member bool) []Quote {
	quotes := make([]Quote, len(groups))
	feeCharged := member
	for i, g := range groups {
		q := Quote{
			StoreID:     g.StoreID,
			Subtotal:    g.Subtotal(),
			Discount:    decimal.Zero,
			ShippingFee: decimal.Zero,
		}
		if c != nil {
			q.Discount = c.DiscountOn(q.Subtotal)
		}
		if !feeCharged {
			q.ShippingFee = ShippingFee
			feeCharged = true
		}
		q.Total = q.Subtotal.Sub(q.Discount).Add(q.ShippingFee).Round(2)
		quotes[i] = q
	}
	return quotes
}
