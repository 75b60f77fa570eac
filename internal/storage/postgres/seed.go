package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/store"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, name, email, street, city, state, zip, country, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, street = EXCLUDED.street,
			city = EXCLUDED.city, state = EXCLUDED.state, zip = EXCLUDED.zip,
			country = EXCLUDED.country, phone = EXCLUDED.phone`

	upsertStoreSQL = `INSERT INTO stores (id, user_id, name, username, description, address, logo, email, contact, status, is_active)
		VALUES ($1, $2, $3, lower($4), $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, username = EXCLUDED.username, description = EXCLUDED.description,
			address = EXCLUDED.address, logo = EXCLUDED.logo, email = EXCLUDED.email,
			contact = EXCLUDED.contact, status = EXCLUDED.status, is_active = EXCLUDED.is_active`

	upsertProductSQL = `INSERT INTO products (id, store_id, name, description, mrp, price, images, category, in_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id, name = EXCLUDED.name, description = EXCLUDED.description,
			mrp = EXCLUDED.mrp, price = EXCLUDED.price, images = EXCLUDED.images,
			category = EXCLUDED.category, in_stock = EXCLUDED.in_stock`
)

// User is a customer or seller account row.
type User struct {
	ID    string
	Name  string
	Email string
}

// Seeder writes demo and fixture data.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertUsers inserts or updates user rows.
func (s *Seeder) UpsertUsers(ctx context.Context, users ...User) error {
	b := &pgx.Batch{}
	for _, u := range users {
		b.Queue(upsertUserSQL, u.ID, u.Name, u.Email)
	}
	if err := execBatch(ctx, s.pool, b); err != nil {
		return fmt.Errorf("upserting users: %w", err)
	}
	return nil
}

// UpsertAddresses inserts or updates delivery addresses.
func (s *Seeder) UpsertAddresses(ctx context.Context, addresses ...order.Address) error {
	b := &pgx.Batch{}
	for _, a := range addresses {
		b.Queue(upsertAddressSQL, a.ID, a.UserID, a.Name, a.Email, a.Street, a.City, a.State, a.Zip, a.Country, a.Phone)
	}
	if err := execBatch(ctx, s.pool, b); err != nil {
		return fmt.Errorf("upserting addresses: %w", err)
	}
	return nil
}

// UpsertStores inserts or updates stores. Products are not written.
func (s *Seeder) UpsertStores(ctx context.Context, stores ...store.Store) error {
	b := &pgx.Batch{}
	for _, st := range stores {
		b.Queue(upsertStoreSQL,
			st.ID, st.UserID, st.Name, st.Username, st.Description, st.Address,
			st.Logo, st.Email, st.Contact, st.Status, st.IsActive,
		)
	}
	if err := execBatch(ctx, s.pool, b); err != nil {
		return fmt.Errorf("upserting stores: %w", err)
	}
	return nil
}

// UpsertProducts inserts or updates catalog products.
func (s *Seeder) UpsertProducts(ctx context.Context, products ...product.Product) error {
	b := &pgx.Batch{}
	for _, p := range products {
		images := p.Images
		if images == nil {
			images = []string{}
		}
		b.Queue(upsertProductSQL, p.ID, p.StoreID, p.Name, p.Description, p.MRP, p.Price, images, p.Category, p.InStock)
	}
	if err := execBatch(ctx, s.pool, b); err != nil {
		return fmt.Errorf("upserting products: %w", err)
	}
	return nil
}
