package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, description, discount, for_new_user, for_member, is_public, expires_at
		FROM coupons WHERE code = $1`

	upsertCouponSQL = `INSERT INTO coupons (code, description, discount, for_new_user, for_member, is_public, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount = EXCLUDED.discount,
			for_new_user = EXCLUDED.for_new_user,
			for_member = EXCLUDED.for_member,
			is_public = EXCLUDED.is_public,
			expires_at = EXCLUDED.expires_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its exact code. Expiry is not checked here.
// Returns coupon.ErrNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Upsert inserts the coupons or updates them in place, in a single batch.
func (r *CouponRepository) Upsert(ctx context.Context, coupons ...coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, c := range coupons {
		b.Queue(upsertCouponSQL,
			c.Code, c.Description, c.Discount, c.ForNewUser, c.ForMember, c.IsPublic, c.ExpiresAt,
		)
	}
	return execBatch(ctx, r.pool, b)
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.Code, &c.Description, &c.Discount, &c.ForNewUser, &c.ForMember, &c.IsPublic, &c.ExpiresAt,
	)
	return c, err
}
