package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const clearCartSQL = `UPDATE users SET cart = '{}'::jsonb WHERE id = $1`

var _ order.CartStore = (*CartRepository)(nil)

// CartRepository manages the cart stored on the users row.
type CartRepository struct {
	q querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool}
}

// Clear resets the user's cart to an empty object.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	tag, err := r.q.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart of user %q: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("clearing cart: user %q does not exist", userID)
	}
	return nil
}
