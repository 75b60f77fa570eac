package order

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Catalog ---

var (
	_ product.Repository = (*mockProductRepo)(nil)
	_ Repository         = (*memStore)(nil)
	_ Transactor         = (*memStore)(nil)
	_ CartStore          = (*memTx)(nil)
)

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
	calls  int
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestProduct(id, storeID, price string) product.Product {
	return product.Product{
		ID:       id,
		StoreID:  storeID,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		MRP:      decimal.RequireFromString(price),
		Category: "test",
		InStock:  true,
	}
}

// --- Coupons ---

type mockCouponFinder struct {
	coupons map[string]*coupon.Coupon
	err     error
}

func newCouponFinder(coupons ...*coupon.Coupon) *mockCouponFinder {
	m := &mockCouponFinder{coupons: make(map[string]*coupon.Coupon)}
	for _, c := range coupons {
		m.coupons[c.Code] = c
	}
	return m
}

func (m *mockCouponFinder) Find(_ context.Context, code string) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

// --- Orders, carts and transactions ---

// memStore is an in-memory order store. Writes made through InTx become
// visible only when the callback succeeds.
type memStore struct {
	mu        sync.Mutex
	orders    []Order
	carts     map[string]int
	addresses map[string]string

	countErr     error
	listErr      error
	clearErr     error
	failCreateAt int
	txCalls      int
	// beforeCommit runs inside the transaction before the callback.
	beforeCommit func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		carts:     make(map[string]int),
		addresses: make(map[string]string),
	}
}

func (s *memStore) withAddress(id, userID string) *memStore {
	s.addresses[id] = userID
	return s
}

func (s *memStore) withCart(userID string, items int) *memStore {
	s.carts[userID] = items
	return s
}

func (s *memStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.countLocked(userID, nil), nil
}

func (s *memStore) countLocked(userID string, pending []Order) int {
	n := 0
	for _, set := range [][]Order{s.orders, pending} {
		for _, o := range set {
			if o.UserID == userID {
				n++
			}
		}
	}
	return n
}

func (s *memStore) CreateWithLineItems(context.Context, *Order) error {
	return errors.New("create outside transaction")
}

func (s *memStore) ListVisibleForUser(_ context.Context, userID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID && o.Visible() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) userOrders(userID string) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error {
	s.mu.Lock()
	s.txCalls++
	hook := s.beforeCommit
	s.mu.Unlock()
	if hook != nil {
		hook(s)
	}

	tx := &memTx{store: s}
	if err := fn(ctx, TxStores{Orders: tx, Carts: tx}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, tx.pending...)
	for _, userID := range tx.cleared {
		s.carts[userID] = 0
	}
	return nil
}

type memTx struct {
	store   *memStore
	pending []Order
	cleared []string
	creates int
}

func (t *memTx) CountByUser(_ context.Context, userID string) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.countErr != nil {
		return 0, t.store.countErr
	}
	return t.store.countLocked(userID, t.pending), nil
}

func (t *memTx) CreateWithLineItems(_ context.Context, o *Order) error {
	t.creates++
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failCreateAt == t.creates {
		return errors.New("insert order: connection reset")
	}
	if owner, ok := t.store.addresses[o.AddressID]; !ok || owner != o.UserID {
		return ErrAddressNotFound
	}
	t.pending = append(t.pending, *o)
	return nil
}

func (t *memTx) ListVisibleForUser(context.Context, string) ([]Order, error) {
	return nil, errors.New("not supported in transaction")
}

func (t *memTx) Clear(_ context.Context, userID string) error {
	if t.store.clearErr != nil {
		return t.store.clearErr
	}
	t.cleared = append(t.cleared, userID)
	return nil
}

// --- Events ---

type mockPublisher struct {
	mu     sync.Mutex
	events []Placed
	err    error
}

func (m *mockPublisher) PublishOrderPlaced(_ context.Context, e Placed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}
