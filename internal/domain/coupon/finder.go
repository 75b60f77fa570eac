package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Finder resolves redeemable coupons, hiding expired ones.
type Finder struct {
	repo Repository
	now  func() time.Time
}

// NewFinder creates a Finder backed by the given Repository.
func NewFinder(repo Repository) *Finder {
	return &Finder{repo: repo, now: time.Now}
}

// Find looks up code and checks it is still redeemable and well formed.
// Expired coupons are reported as ErrNotFound.
func (f *Finder) Find(ctx context.Context, code string) (*Coupon, error) {
	c, err := f.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Expired(f.now()) {
		return nil, ErrNotFound
	}
	return c, nil
}
