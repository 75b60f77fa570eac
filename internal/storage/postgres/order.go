package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	// insertOrderSQL inserts nothing when the address is not owned by the user.
	insertOrderSQL = `INSERT INTO orders (id, user_id, store_id, address_id, total, status,
			payment_method, is_paid, is_coupon_used, coupon, created_at, updated_at)
		SELECT $1::text, $2::text, $3::text, a.id, $4::numeric, $5::text,
			$6::text, $7::boolean, $8::boolean, $9::jsonb, $10::timestamptz, $10::timestamptz
		FROM addresses a WHERE a.id = $11 AND a.user_id = $2`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, line_no, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)`

	listVisibleOrdersSQL = `SELECT o.id, o.user_id, o.store_id, o.address_id, o.total, o.status,
			o.payment_method, o.is_paid, o.is_coupon_used, o.coupon, o.created_at,
			a.id, a.user_id, a.name, a.email, a.street, a.city, a.state, a.zip, a.country, a.phone
		FROM orders o
		JOIN addresses a ON a.id = o.address_id
		WHERE o.user_id = $1
			AND (o.payment_method = 'COD' OR (o.payment_method = 'CARD' AND o.is_paid))
		ORDER BY o.created_at DESC, o.id`

	listOrderItemsSQL = `SELECT i.order_id, i.product_id, i.quantity, i.price, ` + productColumns + `
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.line_no`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Inside
// a transaction it is bound to the pgx.Tx by Transactor.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// CountByUser returns the number of orders the user has placed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders for user %q: %w", userID, err)
	}
	return n, nil
}

// CreateWithLineItems persists the order and its line items. Line items are
// numbered in slice order so the same product may appear more than once.
func (r *OrderRepository) CreateWithLineItems(ctx context.Context, o *order.Order) error {
	tag, err := r.q.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, o.StoreID, o.Total, string(o.Status),
		string(o.PaymentMethod), o.IsPaid, o.IsCouponUsed, coupon.MarshalSnapshot(o.Coupon), o.CreatedAt,
		o.AddressID,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("creating order %q with address %q: %w", o.ID, o.AddressID, order.ErrAddressNotFound)
	}

	b := &pgx.Batch{}
	for i, item := range o.Items {
		b.Queue(insertOrderItemSQL, o.ID, i, item.ProductID, item.Quantity, item.Price)
	}
	if err := execBatch(ctx, r.q, b); err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.ID, err)
	}
	return nil
}

// ListVisibleForUser returns the user's cash on delivery orders and paid card
// orders, newest first, with line item products and the address attached.
func (r *OrderRepository) ListVisibleForUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listVisibleOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err = r.q.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("scanning order items: %w", err)
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		a             order.Address
		status        string
		paymentMethod string
		snapshot      []byte
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &o.StoreID, &o.AddressID, &o.Total, &status,
		&paymentMethod, &o.IsPaid, &o.IsCouponUsed, &snapshot, &o.CreatedAt,
		&a.ID, &a.UserID, &a.Name, &a.Email, &a.Street, &a.City, &a.State, &a.Zip, &a.Country, &a.Phone,
	); err != nil {
		return o, err
	}
	c, err := coupon.UnmarshalSnapshot(snapshot)
	if err != nil {
		return o, fmt.Errorf("order %q: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.Coupon = c
	o.Address = &a
	return o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		item order.LineItem
		p    product.Product
	)
	err := row.Scan(
		&item.OrderID, &item.ProductID, &item.Quantity, &item.Price,
		&p.ID, &p.StoreID, &p.Name, &p.Description, &p.MRP, &p.Price,
		&p.Images, &p.Category, &p.InStock, &p.CreatedAt,
	)
	item.Product = &p
	return item, err
}
