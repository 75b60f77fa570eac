// Command seed-db loads the demo storefront catalog into PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type catalog struct {
	Users []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"users"`
	Sessions []struct {
		Token        string   `json:"token"`
		UserID       string   `json:"userId"`
		Capabilities []string `json:"capabilities"`
	} `json:"sessions"`
	Addresses []struct {
		ID      string `json:"id"`
		UserID  string `json:"userId"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Street  string `json:"street"`
		City    string `json:"city"`
		State   string `json:"state"`
		Zip     string `json:"zip"`
		Country string `json:"country"`
		Phone   string `json:"phone"`
	} `json:"addresses"`
	Stores []struct {
		ID          string `json:"id"`
		UserID      string `json:"userId"`
		Name        string `json:"name"`
		Username    string `json:"username"`
		Description string `json:"description"`
		Address     string `json:"address"`
		Logo        string `json:"logo"`
		Email       string `json:"email"`
		Contact     string `json:"contact"`
		Status      string `json:"status"`
		IsActive    bool   `json:"isActive"`
	} `json:"stores"`
	Products []struct {
		ID          string          `json:"id"`
		StoreID     string          `json:"storeId"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		MRP         decimal.Decimal `json:"mrp"`
		Price       decimal.Decimal `json:"price"`
		Images      []string        `json:"images"`
		Category    string          `json:"category"`
		InStock     bool            `json:"inStock"`
	} `json:"products"`
	Coupons []struct {
		Code        string          `json:"code"`
		Description string          `json:"description"`
		Discount    decimal.Decimal `json:"discount"`
		ForNewUser  bool            `json:"forNewUser"`
		ForMember   bool            `json:"forMember"`
		IsPublic    bool            `json:"isPublic"`
		ExpiresAt   time.Time       `json:"expiresAt"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL   string
		catalogFile   string
		sessionPepper string
		sessionTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (default: embedded demo catalog)")
	flag.StringVar(&sessionPepper, "session-pepper", "", "HMAC pepper for session tokens (or STOREFRONT_SESSION_PEPPER env)")
	flag.DurationVar(&sessionTTL, "session-ttl", 365*24*time.Hour, "lifetime of seeded sessions")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if sessionPepper == "" {
		sessionPepper = os.Getenv("STOREFRONT_SESSION_PEPPER")
	}
	if sessionPepper == "" {
		slog.Error("session pepper is required: set --session-pepper or STOREFRONT_SESSION_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, []byte(sessionPepper), sessionTTL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, pepper []byte, sessionTTL time.Duration) error {
	data := db.SeedCatalog
	if catalogFile != "" {
		slog.Info("reading catalog file", slog.String("path", catalogFile))
		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog file")
		}
	}
	var c catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAccounts(ctx, pool, &c); err != nil {
		return err
	}
	if err := seedSessions(ctx, pool, &c, pepper, sessionTTL); err != nil {
		return errors.Wrap(err, "seed sessions")
	}
	if err := seedCatalog(ctx, pool, &c); err != nil {
		return err
	}
	if err := seedCoupons(ctx, pool, &c); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool, c *catalog) error {
	s := postgres.NewSeeder(pool)

	users := make([]postgres.User, len(c.Users))
	for i, u := range c.Users {
		users[i] = postgres.User{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	slog.Info("upserting users", slog.Int("count", len(users)))
	if err := s.UpsertUsers(ctx, users...); err != nil {
		return errors.Wrap(err, "seed users")
	}

	addresses := make([]order.Address, len(c.Addresses))
	for i, a := range c.Addresses {
		addresses[i] = order.Address{
			ID:      a.ID,
			UserID:  a.UserID,
			Name:    a.Name,
			Email:   a.Email,
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Zip:     a.Zip,
			Country: a.Country,
			Phone:   a.Phone,
		}
	}
	slog.Info("upserting addresses", slog.Int("count", len(addresses)))
	if err := s.UpsertAddresses(ctx, addresses...); err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	return nil
}

func seedSessions(ctx context.Context, pool *pgxpool.Pool, c *catalog, pepper []byte, ttl time.Duration) error {
	repo := postgres.NewSessionRepository(pool)
	expiresAt := time.Now().Add(ttl)
	for _, s := range c.Sessions {
		p := auth.Principal{UserID: s.UserID, Capabilities: s.Capabilities}
		if err := repo.Upsert(ctx, auth.HashToken(pepper, s.Token), p, expiresAt); err != nil {
			return err
		}
		slog.Info("seeded session",
			slog.String("user_id", s.UserID),
			slog.Any("capabilities", s.Capabilities),
			slog.Time("expires_at", expiresAt),
		)
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, c *catalog) error {
	s := postgres.NewSeeder(pool)

	stores := make([]store.Store, len(c.Stores))
	for i, st := range c.Stores {
		stores[i] = store.Store{
			ID:          st.ID,
			UserID:      st.UserID,
			Name:        st.Name,
			Username:    st.Username,
			Description: st.Description,
			Address:     st.Address,
			Logo:        st.Logo,
			Email:       st.Email,
			Contact:     st.Contact,
			Status:      st.Status,
			IsActive:    st.IsActive,
		}
	}
	slog.Info("upserting stores", slog.Int("count", len(stores)))
	if err := s.UpsertStores(ctx, stores...); err != nil {
		return errors.Wrap(err, "seed stores")
	}

	products := make([]product.Product, len(c.Products))
	for i, p := range c.Products {
		products[i] = product.Product{
			ID:          p.ID,
			StoreID:     p.StoreID,
			Name:        p.Name,
			Description: p.Description,
			MRP:         p.MRP,
			Price:       p.Price,
			Images:      p.Images,
			Category:    p.Category,
			InStock:     p.InStock,
		}
		if err := products[i].Validate(); err != nil {
			return errors.Wrapf(err, "product %s", p.ID)
		}
	}
	slog.Info("upserting products", slog.Int("count", len(products)))
	if err := s.UpsertProducts(ctx, products...); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, c *catalog) error {
	coupons := make([]coupon.Coupon, len(c.Coupons))
	for i, cp := range c.Coupons {
		coupons[i] = coupon.Coupon{
			Code:        cp.Code,
			Description: cp.Description,
			Discount:    cp.Discount,
			ForNewUser:  cp.ForNewUser,
			ForMember:   cp.ForMember,
			IsPublic:    cp.IsPublic,
			ExpiresAt:   cp.ExpiresAt,
		}
		if err := coupons[i].Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", cp.Code)
		}
	}
	slog.Info("upserting coupons", slog.Int("count", len(coupons)))
	return postgres.NewCouponRepository(pool).Upsert(ctx, coupons...)
}
