package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/store"
)

const (
	findActiveStoreSQL = `SELECT id, user_id, name, username, description, address, logo, email, contact,
			status, is_active, created_at
		FROM stores WHERE username = $1 AND is_active`

	listStoreProductsSQL = `SELECT ` + productColumns + `
		FROM products p WHERE p.store_id = $1
		ORDER BY p.created_at DESC, p.id`

	listStoreRatingsSQL = `SELECT r.id, r.user_id, r.product_id, r.order_id, r.rating, r.review, r.created_at
		FROM ratings r
		JOIN products p ON p.id = r.product_id
		WHERE p.store_id = $1
		ORDER BY r.created_at DESC, r.id`
)

var _ store.Repository = (*StoreRepository)(nil)

// StoreRepository implements store.Repository backed by PostgreSQL.
type StoreRepository struct {
	pool *pgxpool.Pool
}

// NewStoreRepository returns a StoreRepository that uses the given pool.
func NewStoreRepository(pool *pgxpool.Pool) *StoreRepository {
	return &StoreRepository{pool: pool}
}

// FindActiveByUsername loads an active store with its products and ratings.
func (r *StoreRepository) FindActiveByUsername(ctx context.Context, username string) (*store.Store, error) {
	rows, err := r.pool.Query(ctx, findActiveStoreSQL, username)
	if err != nil {
		return nil, fmt.Errorf("finding store %q: %w", username, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanStore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("finding store %q: %w", username, err)
	}

	rows, err = r.pool.Query(ctx, listStoreProductsSQL, s.ID)
	if err != nil {
		return nil, fmt.Errorf("listing products of store %q: %w", s.ID, err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}

	rows, err = r.pool.Query(ctx, listStoreRatingsSQL, s.ID)
	if err != nil {
		return nil, fmt.Errorf("listing ratings of store %q: %w", s.ID, err)
	}
	ratings, err := pgx.CollectRows(rows, scanRating)
	if err != nil {
		return nil, fmt.Errorf("scanning ratings: %w", err)
	}

	byProduct := make(map[string][]store.Rating, len(products))
	for _, rt := range ratings {
		byProduct[rt.ProductID] = append(byProduct[rt.ProductID], rt)
	}
	s.Products = make([]store.Product, len(products))
	for i, p := range products {
		s.Products[i] = store.Product{Product: p, Ratings: byProduct[p.ID]}
	}
	return &s, nil
}

func scanStore(row pgx.CollectableRow) (store.Store, error) {
	var s store.Store
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Username, &s.Description, &s.Address, &s.Logo, &s.Email, &s.Contact,
		&s.Status, &s.IsActive, &s.CreatedAt,
	)
	return s, err
}

func scanRating(row pgx.CollectableRow) (store.Rating, error) {
	var rt store.Rating
	err := row.Scan(&rt.ID, &rt.UserID, &rt.ProductID, &rt.OrderID, &rt.Rating, &rt.Review, &rt.CreatedAt)
	return rt, err
}
