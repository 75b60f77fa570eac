package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

// serializationFailure is the SQLSTATE reported when a serializable
// transaction must be retried.
const serializationFailure = "40001"

var _ order.Transactor = (*Transactor)(nil)

// Transactor runs checkout writes in a single transaction.
type Transactor struct {
	pool     *pgxpool.Pool
	opts     pgx.TxOptions
	attempts int
}

// NewTransactor returns a Transactor. With serializable set, transactions run
// at SERIALIZABLE isolation and are retried on serialization failures up to
// attempts times in total.
func NewTransactor(pool *pgxpool.Pool, serializable bool, attempts int) *Transactor {
	t := &Transactor{pool: pool, attempts: max(attempts, 1)}
	if serializable {
		t.opts.IsoLevel = pgx.Serializable
	}
	return t
}

// InTx begins a transaction, binds the order and cart stores to it and runs fn.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, tx order.TxStores) error) error {
	var err error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, t.pool, t.opts, func(tx pgx.Tx) error {
			return fn(ctx, order.TxStores{
				Orders: &OrderRepository{q: tx},
				Carts:  &CartRepository{q: tx},
			})
		})
		if !isSerializationFailure(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
