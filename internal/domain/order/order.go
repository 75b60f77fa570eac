// Package order implements checkout for multi-store carts and the caller's
// order history.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// PaymentMethod enumerates how an order is paid for.
type PaymentMethod string

const (
	// PaymentCashOnDelivery orders are visible as soon as they are placed.
	PaymentCashOnDelivery PaymentMethod = "COD"
	// PaymentCard orders are visible only once payment is confirmed.
	PaymentCard PaymentMethod = "CARD"
)

// ParsePaymentMethod normalizes a client supplied payment method. STRIPE is
// accepted as an alias of CARD.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "COD":
		return PaymentCashOnDelivery, true
	case "CARD", "STRIPE":
		return PaymentCard, true
	default:
		return "", false
	}
}

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPlaced     Status = "ORDER_PLACED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
)

// CartItem is a product and quantity requested by the client.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Address is a delivery address owned by a user.
type Address struct {
	ID      string
	UserID  string
	Name    string
	Email   string
	Street  string
	City    string
	State   string
	Zip     string
	Country string
	Phone   string
}

// LineItem is a product line of a persisted order. Price is the unit price
// captured when the order was placed.
type LineItem struct {
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	// Product is populated when reading orders back.
	Product *product.Product
}

// Subtotal returns Price multiplied by Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a purchase from a single store.
type Order struct {
	ID            string
	UserID        string
	StoreID       string
	AddressID     string
	Total         decimal.Decimal
	Status        Status
	PaymentMethod PaymentMethod
	IsPaid        bool
	IsCouponUsed  bool
	// Coupon is a snapshot of the coupon applied at checkout, if any.
	Coupon    *coupon.Coupon
	CreatedAt time.Time
	Items     []LineItem
	// Address is populated when reading orders back.
	Address *Address
}

// Visible reports whether the order is shown in the customer's order
// history: cash on delivery orders always, card orders once paid.
func (o *Order) Visible() bool {
	switch o.PaymentMethod {
	case PaymentCashOnDelivery:
		return true
	case PaymentCard:
		return o.IsPaid
	default:
		return false
	}
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CountByUser returns how many orders the user has ever placed.
	CountByUser(ctx context.Context, userID string) (int, error)
	// CreateWithLineItems inserts the order and all of its line items. It
	// returns ErrAddressNotFound when the address does not belong to the user.
	CreateWithLineItems(ctx context.Context, o *Order) error
	// ListVisibleForUser returns the user's visible orders, newest first,
	// with line item products and the delivery address populated.
	ListVisibleForUser(ctx context.Context, userID string) ([]Order, error)
}

// CartStore manages the persisted shopping cart of a user.
type CartStore interface {
	// Clear resets the user's cart to empty.
	Clear(ctx context.Context, userID string) error
}

// TxStores are the stores bound to a single transaction.
type TxStores struct {
	Orders Repository
	Carts  CartStore
}

// Transactor runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}

// Placed is emitted for each order after the checkout transaction commits.
type Placed struct {
	OrderID       string
	UserID        string
	StoreID       string
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	CouponCode    string
	Items         []CartItem
	PlacedAt      time.Time
}

// EventPublisher delivers order events to downstream consumers.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, e Placed) error
}
