package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// CouponFinder resolves a redeemable coupon by code.
type CouponFinder interface {
	Find(ctx context.Context, code string) (*coupon.Coupon, error)
}

// PlaceOrderRequest holds the input for a checkout.
type PlaceOrderRequest struct {
	Caller        auth.Principal
	AddressID     string
	Items         []CartItem
	PaymentMethod string
	CouponCode    string
}

// PlaceOrderResult holds the orders created by a checkout, one per store in
// the order the stores first appeared in the cart.
type PlaceOrderResult struct {
	OrderIDs []string
	Orders   []Order
	// Total is the sum of all order totals.
	Total decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithPublisher sets the publisher notified after orders are committed.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// Service encapsulates order placement and order history.
type Service struct {
	products product.Repository
	coupons  CouponFinder
	orders   Repository
	tx       Transactor
	events   EventPublisher

	tracer trace.Tracer
	meter  metric.Meter
	placed metric.Int64Counter
	failed metric.Int64Counter

	now   func() time.Time
	newID func() string
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons CouponFinder,
	orders Repository,
	tx Transactor,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		tx:       tx,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders created by checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	if s.failed, err = s.meter.Int64Counter("storefront.orders.failed",
		metric.WithDescription("Checkouts rejected or failed"),
	); err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}
	return s, nil
}

// PlaceOrder validates the checkout, splits the cart by store, prices each
// store order and persists all of them together with the cart reset in a
// single transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *PlaceOrderResult, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int("order.items", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			kind := KindOf(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, kind.String())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
		}
		span.End()
	}()

	if !req.Caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	method, err := req.validate()
	if err != nil {
		return nil, err
	}
	userID := req.Caller.UserID

	var c *coupon.Coupon
	if req.CouponCode != "" {
		c, err = s.coupons.Find(ctx, req.CouponCode)
		switch {
		case errors.Is(err, coupon.ErrNotFound):
			return nil, ErrCouponNotFound
		case err != nil:
			return nil, persistence("find coupon", err)
		}
		if c.ForNewUser {
			n, err := s.orders.CountByUser(ctx, userID)
			if err != nil {
				return nil, persistence("count orders", err)
			}
			if err := c.CheckNewUser(n); err != nil {
				return nil, err
			}
		}
	}

	member := req.Caller.HasCapability(auth.CapabilityPlusPlan)
	if c != nil {
		if err := c.CheckMember(member); err != nil {
			return nil, err
		}
	}

	lines, err := s.resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	groups := Partition(lines)
	quotes := PriceGroups(groups, c, member)
	now := s.now()
	orders := make([]Order, len(groups))
	total := decimal.Zero
	for i, g := range groups {
		o := Order{
			ID:            s.newID(),
			UserID:        userID,
			StoreID:       g.StoreID,
			AddressID:     req.AddressID,
			Total:         quotes[i].Total,
			Status:        StatusPlaced,
			PaymentMethod: method,
			IsCouponUsed:  c != nil,
			Coupon:        c,
			CreatedAt:     now,
			Items:         make([]LineItem, len(g.Lines)),
		}
		for j, l := range g.Lines {
			p := l.Product
			o.Items[j] = LineItem{
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  l.Item.Quantity,
				Price:     p.Price,
				Product:   &p,
			}
		}
		orders[i] = o
		total = total.Add(o.Total)
	}

	span.AddEvent("persist", trace.WithAttributes(attribute.Int("order.count", len(orders))))
	if err := s.tx.InTx(ctx, func(ctx context.Context, tx TxStores) error {
		if c != nil && c.ForNewUser {
			// Another checkout may have committed since the first check.
			n, err := tx.Orders.CountByUser(ctx, userID)
			if err != nil {
				return errors.Wrap(err, "recount orders")
			}
			if err := c.CheckNewUser(n); err != nil {
				return err
			}
		}
		for i := range orders {
			if err := tx.Orders.CreateWithLineItems(ctx, &orders[i]); err != nil {
				return errors.Wrapf(err, "create order for store %s", orders[i].StoreID)
			}
		}
		if err := tx.Carts.Clear(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	}); err != nil {
		switch {
		case errors.Is(err, coupon.ErrIneligible):
			var ie *coupon.IneligibleError
			if errors.As(err, &ie) {
				return nil, ie
			}
			return nil, ErrCouponIneligible
		case errors.Is(err, ErrAddressNotFound):
			return nil, &InvalidRequestError{Field: "addressId", Reason: "address not found"}
		default:
			return nil, persistence("place orders", err)
		}
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	s.placed.Add(ctx, int64(len(orders)), metric.WithAttributes(
		attribute.String("payment_method", string(method)),
		attribute.Bool("coupon", c != nil),
	))
	zctx.From(ctx).Info("Orders placed",
		zap.String("user_id", userID),
		zap.Strings("order_ids", ids),
		zap.String("total", total.StringFixed(2)),
	)
	s.publish(ctx, orders)

	return &PlaceOrderResult{
		OrderIDs: ids,
		Orders:   orders,
		Total:    total,
	}, nil
}

// validate checks the request shape before anything is read from storage.
func (r *PlaceOrderRequest) validate() (PaymentMethod, error) {
	if r.AddressID == "" {
		return "", &InvalidRequestError{Field: "addressId", Reason: "required", Missing: true}
	}
	if r.PaymentMethod == "" {
		return "", &InvalidRequestError{Field: "paymentMethod", Reason: "required", Missing: true}
	}
	if len(r.Items) == 0 {
		return "", &InvalidRequestError{Field: "items", Reason: "required", Missing: true}
	}
	method, ok := ParsePaymentMethod(r.PaymentMethod)
	if !ok {
		return "", &InvalidRequestError{Field: "paymentMethod", Reason: "unsupported payment method " + r.PaymentMethod}
	}
	for _, item := range r.Items {
		if item.ProductID == "" {
			return "", &InvalidRequestError{Field: "items", Reason: "product id required"}
		}
		if item.Quantity <= 0 {
			return "", &InvalidRequestError{
				Field:  "items",
				Reason: "quantity must be greater than 0 for product " + item.ProductID,
			}
		}
	}
	return method, nil
}

// resolve fetches every requested product in a single batch and pairs it
// with its cart item, preserving input order.
func (s *Service) resolve(ctx context.Context, items []CartItem) ([]Line, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, persistence("get products", err)
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if err := p.Validate(); err != nil {
			return nil, persistence("resolve products", err)
		}
		lines[i] = Line{Item: item, Product: p}
	}
	return lines, nil
}

// publish emits one event per committed order. Failures are logged and do
// not fail the checkout.
func (s *Service) publish(ctx context.Context, orders []Order) {
	if s.events == nil {
		return
	}
	lg := zctx.From(ctx)
	for _, o := range orders {
		e := Placed{
			OrderID:       o.ID,
			UserID:        o.UserID,
			StoreID:       o.StoreID,
			Total:         o.Total,
			PaymentMethod: o.PaymentMethod,
			Items:         make([]CartItem, len(o.Items)),
			PlacedAt:      o.CreatedAt,
		}
		if o.Coupon != nil {
			e.CouponCode = o.Coupon.Code
		}
		for i, item := range o.Items {
			e.Items[i] = CartItem{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		if err := s.events.PublishOrderPlaced(ctx, e); err != nil {
			lg.Warn("Publish order placed event",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}
}
