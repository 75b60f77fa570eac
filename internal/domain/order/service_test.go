package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var (
	nonMember = auth.Principal{UserID: "u1"}
	member    = auth.Principal{UserID: "u1", Capabilities: []string{auth.CapabilityPlusPlan}}
)

type fixture struct {
	svc       *Service
	products  *mockProductRepo
	coupons   *mockCouponFinder
	store     *memStore
	publisher *mockPublisher
}

func newFixture(t *testing.T, products []product.Product, coupons ...*coupon.Coupon) *fixture {
	t.Helper()

	f := &fixture{
		products:  newProductRepo(products...),
		coupons:   newCouponFinder(coupons...),
		store:     newMemStore().withAddress("a1", "u1").withCart("u1", 3),
		publisher: &mockPublisher{},
	}
	svc, err := NewService(f.products, f.coupons, f.store, f.store, WithPublisher(f.publisher))
	require.NoError(t, err)

	var seq int
	svc.now = func() time.Time { return fixedNow }
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("o%d", seq)
	}
	f.svc = svc
	return f
}

func twoStoreCart() []product.Product {
	return []product.Product{
		newTestProduct("p1", "s1", "10"),
		newTestProduct("p2", "s2", "20"),
	}
}

func twoStoreItems() []CartItem {
	return []CartItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}
}

func request(caller auth.Principal, couponCode string, items ...CartItem) PlaceOrderRequest {
	return PlaceOrderRequest{
		Caller:        caller,
		AddressID:     "a1",
		Items:         items,
		PaymentMethod: "COD",
		CouponCode:    couponCode,
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestPlaceOrder_Unauthenticated(t *testing.T) {
	f := newFixture(t, twoStoreCart())

	_, err := f.svc.PlaceOrder(context.Background(), request(auth.Principal{}, "", twoStoreItems()...))
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
	assert.Zero(t, f.store.txCalls)
}

func TestPlaceOrder_InvalidRequest(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(r *PlaceOrderRequest)
		wantField   string
		wantMissing bool
	}{
		{
			name:        "missing address",
			mutate:      func(r *PlaceOrderRequest) { r.AddressID = "" },
			wantField:   "addressId",
			wantMissing: true,
		},
		{
			name:        "missing payment method",
			mutate:      func(r *PlaceOrderRequest) { r.PaymentMethod = "" },
			wantField:   "paymentMethod",
			wantMissing: true,
		},
		{
			name:        "empty items",
			mutate:      func(r *PlaceOrderRequest) { r.Items = nil },
			wantField:   "items",
			wantMissing: true,
		},
		{
			name:      "unknown payment method",
			mutate:    func(r *PlaceOrderRequest) { r.PaymentMethod = "BARTER" },
			wantField: "paymentMethod",
		},
		{
			name:      "zero quantity",
			mutate:    func(r *PlaceOrderRequest) { r.Items[0].Quantity = 0 },
			wantField: "items",
		},
		{
			name:      "negative quantity",
			mutate:    func(r *PlaceOrderRequest) { r.Items[1].Quantity = -3 },
			wantField: "items",
		},
		{
			name:      "empty product id",
			mutate:    func(r *PlaceOrderRequest) { r.Items[0].ProductID = "" },
			wantField: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoStoreCart())
			// Validation runs before any lookup.
			f.coupons.err = errors.New("coupon store down")

			req := request(nonMember, "SAVE10", twoStoreItems()...)
			tt.mutate(&req)

			_, err := f.svc.PlaceOrder(context.Background(), req)

			var ire *InvalidRequestError
			require.ErrorAs(t, err, &ire)
			assert.Equal(t, tt.wantField, ire.Field)
			assert.Equal(t, tt.wantMissing, ire.Missing)
			assert.Equal(t, KindInvalidRequest, KindOf(err))
			assert.Zero(t, f.products.calls)
		})
	}
}

func TestPlaceOrder_StripeAlias(t *testing.T) {
	f := newFixture(t, twoStoreCart())
	req := request(nonMember, "", twoStoreItems()...)
	req.PaymentMethod = "stripe"

	result, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	for _, o := range result.Orders {
		assert.Equal(t, PaymentCard, o.PaymentMethod)
		assert.False(t, o.IsPaid)
	}
}

// Two stores, no coupon, non-member: the fee lands on the first store only.
func TestPlaceOrder_SplitsByStoreWithShippingFee(t *testing.T) {
	f := newFixture(t, twoStoreCart())

	result, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "", twoStoreItems()...))
	require.NoError(t, err)

	require.Len(t, result.Orders, 2)
	assert.Equal(t, []string{"o1", "o2"}, result.OrderIDs)

	s1, s2 := result.Orders[0], result.Orders[1]
	assert.Equal(t, "s1", s1.StoreID)
	assertDecimal(t, "25.00", s1.Total)
	require.Len(t, s1.Items, 1)
	assert.Equal(t, "p1", s1.Items[0].ProductID)
	assert.Equal(t, 2, s1.Items[0].Quantity)
	assertDecimal(t, "10", s1.Items[0].Price)

	assert.Equal(t, "s2", s2.StoreID)
	assertDecimal(t, "20.00", s2.Total)
	require.Len(t, s2.Items, 1)
	assert.Equal(t, "p2", s2.Items[0].ProductID)

	assertDecimal(t, "45.00", result.Total)

	for _, o := range result.Orders {
		assert.Equal(t, StatusPlaced, o.Status)
		assert.Equal(t, "a1", o.AddressID)
		assert.False(t, o.IsCouponUsed)
		assert.Nil(t, o.Coupon)
		assert.Equal(t, fixedNow, o.CreatedAt)
	}

	assert.Len(t, f.store.userOrders("u1"), 2)
	assert.Zero(t, f.store.carts["u1"])
	assert.Equal(t, 1, f.store.txCalls)
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, "o1", f.publisher.events[0].OrderID)
	assert.Equal(t, []CartItem{{ProductID: "p1", Quantity: 2}}, f.publisher.events[0].Items)
}

// Same cart, 10% coupon, member: each store discounted, no fee.
func TestPlaceOrder_MemberWithCoupon(t *testing.T) {
	c := &coupon.Coupon{Code: "SAVE10", Discount: decimal.NewFromInt(10)}
	f := newFixture(t, twoStoreCart(), c)

	result, err := f.svc.PlaceOrder(context.Background(), request(member, "SAVE10", twoStoreItems()...))
	require.NoError(t, err)

	require.Len(t, result.Orders, 2)
	assertDecimal(t, "18.00", result.Orders[0].Total)
	assertDecimal(t, "18.00", result.Orders[1].Total)
	for _, o := range result.Orders {
		assert.True(t, o.IsCouponUsed)
		require.NotNil(t, o.Coupon)
		assert.Equal(t, "SAVE10", o.Coupon.Code)
	}
	assert.Equal(t, "SAVE10", f.publisher.events[1].CouponCode)
}

func TestPlaceOrder_UnknownCoupon(t *testing.T) {
	f := newFixture(t, twoStoreCart())

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "NOPE", twoStoreItems()...))
	require.ErrorIs(t, err, ErrCouponNotFound)
	assert.Equal(t, KindCouponNotFound, KindOf(err))

	assert.Empty(t, f.store.userOrders("u1"))
	assert.Equal(t, 3, f.store.carts["u1"])
	assert.Zero(t, f.store.txCalls)
	assert.Zero(t, f.products.calls)
}

func TestPlaceOrder_CouponLookupBeforeProducts(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "NOPE", CartItem{ProductID: "ghost", Quantity: 1}))
	assert.Equal(t, KindCouponNotFound, KindOf(err))
}

func TestPlaceOrder_CouponFinderFailure(t *testing.T) {
	f := newFixture(t, twoStoreCart())
	f.coupons.err = errors.Wrap(coupon.ErrMalformed, "discount out of range")

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "SAVE10", twoStoreItems()...))
	assert.Equal(t, KindPersistenceFailure, KindOf(err))
	assert.ErrorIs(t, err, coupon.ErrMalformed)
}

func TestPlaceOrder_NewUserCoupon(t *testing.T) {
	welcome := &coupon.Coupon{Code: "WELCOME", Discount: decimal.NewFromInt(10), ForNewUser: true}

	t.Run("first order accepted", func(t *testing.T) {
		f := newFixture(t, twoStoreCart(), welcome)

		result, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "WELCOME", twoStoreItems()...))
		require.NoError(t, err)
		// 20 - 2 + 5 and 20 - 2.
		assertDecimal(t, "23.00", result.Orders[0].Total)
		assertDecimal(t, "18.00", result.Orders[1].Total)
	})

	t.Run("returning user rejected", func(t *testing.T) {
		f := newFixture(t, twoStoreCart(), welcome)
		f.store.orders = append(f.store.orders, Order{ID: "old", UserID: "u1", PaymentMethod: PaymentCard})

		_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "WELCOME", twoStoreItems()...))

		var ie *coupon.IneligibleError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, coupon.AudienceNewUsers, ie.Audience)
		assert.Equal(t, KindCouponIneligible, KindOf(err))
		assert.Len(t, f.store.userOrders("u1"), 1)
		assert.Zero(t, f.store.txCalls)
	})

	t.Run("order committed concurrently", func(t *testing.T) {
		f := newFixture(t, twoStoreCart(), welcome)
		f.store.beforeCommit = func(s *memStore) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.orders = append(s.orders, Order{ID: "race", UserID: "u1", PaymentMethod: PaymentCashOnDelivery})
		}

		_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "WELCOME", twoStoreItems()...))

		var ie *coupon.IneligibleError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, KindCouponIneligible, KindOf(err))
		assert.Len(t, f.store.userOrders("u1"), 1)
		assert.Equal(t, 3, f.store.carts["u1"])
	})

	t.Run("count failure", func(t *testing.T) {
		f := newFixture(t, twoStoreCart(), welcome)
		f.store.countErr = errors.New("timeout")

		_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "WELCOME", twoStoreItems()...))
		assert.Equal(t, KindPersistenceFailure, KindOf(err))
	})
}

func TestPlaceOrder_MemberCoupon(t *testing.T) {
	plus := &coupon.Coupon{Code: "PLUS", Discount: decimal.NewFromInt(20), ForMember: true}

	f := newFixture(t, twoStoreCart(), plus)
	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "PLUS", twoStoreItems()...))

	var ie *coupon.IneligibleError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, coupon.AudienceMembers, ie.Audience)
	assert.Empty(t, f.store.userOrders("u1"))

	f = newFixture(t, twoStoreCart(), plus)
	result, err := f.svc.PlaceOrder(context.Background(), request(member, "PLUS", twoStoreItems()...))
	require.NoError(t, err)
	assertDecimal(t, "16.00", result.Orders[0].Total)
	assertDecimal(t, "16.00", result.Orders[1].Total)
}

func TestPlaceOrder_FeeChargedOnce(t *testing.T) {
	products := []product.Product{
		newTestProduct("a", "s3", "1.10"),
		newTestProduct("b", "s1", "2.20"),
		newTestProduct("c", "s2", "3.30"),
		newTestProduct("d", "s1", "4.40"),
	}
	f := newFixture(t, products)

	result, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "",
		CartItem{ProductID: "a", Quantity: 1},
		CartItem{ProductID: "b", Quantity: 1},
		CartItem{ProductID: "c", Quantity: 1},
		CartItem{ProductID: "d", Quantity: 2},
	))
	require.NoError(t, err)

	require.Len(t, result.Orders, 3)
	assert.Equal(t, "s3", result.Orders[0].StoreID)
	assert.Equal(t, "s1", result.Orders[1].StoreID)
	assert.Equal(t, "s2", result.Orders[2].StoreID)

	assertDecimal(t, "6.10", result.Orders[0].Total)
	assertDecimal(t, "11.00", result.Orders[1].Total)
	assertDecimal(t, "3.30", result.Orders[2].Total)

	require.Len(t, result.Orders[1].Items, 2)
	assert.Equal(t, "b", result.Orders[1].Items[0].ProductID)
	assert.Equal(t, "d", result.Orders[1].Items[1].ProductID)
}

func TestPlaceOrder_RoundsEachStore(t *testing.T) {
	c := &coupon.Coupon{Code: "FIFTEEN", Discount: decimal.NewFromInt(15)}
	f := newFixture(t, []product.Product{newTestProduct("p1", "s1", "19.99")}, c)

	result, err := f.svc.PlaceOrder(context.Background(), request(member, "FIFTEEN", CartItem{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)
	// 59.97 - 8.9955 = 50.9745
	assertDecimal(t, "50.97", result.Orders[0].Total)
}

func TestPlaceOrder_DuplicateProductLines(t *testing.T) {
	f := newFixture(t, twoStoreCart())

	result, err := f.svc.PlaceOrder(context.Background(), request(member, "",
		CartItem{ProductID: "p1", Quantity: 1},
		CartItem{ProductID: "p1", Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, result.Orders, 1)
	assert.Len(t, result.Orders[0].Items, 2)
	assertDecimal(t, "30", result.Orders[0].Total)
	assert.Equal(t, 1, f.products.calls)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newFixture(t, twoStoreCart())

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "",
		CartItem{ProductID: "p1", Quantity: 1},
		CartItem{ProductID: "missing", Quantity: 1},
	))

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "missing", pnf.ProductID)
	assert.ErrorIs(t, err, product.ErrNotFound)
	assert.Equal(t, KindProductNotFound, KindOf(err))
	assert.Zero(t, f.store.txCalls)
}

func TestPlaceOrder_MalformedProduct(t *testing.T) {
	f := newFixture(t, []product.Product{newTestProduct("p1", "", "10")})

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "", CartItem{ProductID: "p1", Quantity: 1}))
	assert.Equal(t, KindPersistenceFailure, KindOf(err))
	assert.ErrorIs(t, err, product.ErrMalformed)
}

func TestPlaceOrder_ProductLookupFailure(t *testing.T) {
	f := newFixture(t, twoStoreCart())
	f.products.getErr = errors.New("connection refused")

	_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "", twoStoreItems()...))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "get products", pe.Op)
}

func TestPlaceOrder_AtomicOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(s *memStore)
		wantKind Kind
	}{
		{
			name:     "second order insert fails",
			setup:    func(s *memStore) { s.failCreateAt = 2 },
			wantKind: KindPersistenceFailure,
		},
		{
			name:     "cart reset fails",
			setup:    func(s *memStore) { s.clearErr = errors.New("deadlock detected") },
			wantKind: KindPersistenceFailure,
		},
		{
			name:     "address owned by someone else",
			setup:    func(s *memStore) { s.addresses["a1"] = "u2" },
			wantKind: KindInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, twoStoreCart())
			tt.setup(f.store)

			_, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "", twoStoreItems()...))
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))

			assert.Empty(t, f.store.userOrders("u1"))
			assert.Equal(t, 3, f.store.carts["u1"])
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestPlaceOrder_PublishFailureIgnored(t *testing.T) {
	f := newFixture(t, twoStoreCart())
	f.publisher.err = errors.New("broker unavailable")

	result, err := f.svc.PlaceOrder(context.Background(), request(nonMember, "", twoStoreItems()...))
	require.NoError(t, err)
	assert.Len(t, result.OrderIDs, 2)
	assert.Len(t, f.store.userOrders("u1"), 2)
}

func TestPlaceOrder_WithoutPublisher(t *testing.T) {
	store := newMemStore().withAddress("a1", "u1")
	svc, err := NewService(newProductRepo(twoStoreCart()...), newCouponFinder(), store, store)
	require.NoError(t, err)

	result, err := svc.PlaceOrder(context.Background(), request(nonMember, "", twoStoreItems()...))
	require.NoError(t, err)
	assert.Len(t, result.OrderIDs, 2)
}
