package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrMalformed is returned when a stored product cannot be sold as is.
	ErrMalformed = errors.New("malformed product")
)

// Product represents a catalog item sold by a single store.
type Product struct {
	ID          string
	StoreID     string
	Name        string
	Description string
	MRP         decimal.Decimal
	Price       decimal.Decimal
	Images      []string
	Category    string
	InStock     bool
	CreatedAt   time.Time
}

// Validate checks that the product can be priced into an order.
func (p *Product) Validate() error {
	if p.StoreID == "" {
		return errors.Wrapf(ErrMalformed, "product %s has no store", p.ID)
	}
	if p.Price.IsNegative() {
		return errors.Wrapf(ErrMalformed, "product %s has negative price %s", p.ID, p.Price)
	}
	return nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching ids in no particular order.
	// Unknown ids are silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
