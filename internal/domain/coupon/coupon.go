// Package coupon holds promotional coupon rules applied at checkout.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or has expired.
	ErrNotFound = errors.New("coupon not found")
	// ErrIneligible is returned when the caller does not qualify for a coupon.
	ErrIneligible = errors.New("coupon not applicable")
	// ErrMalformed is returned when a stored coupon violates its own rules.
	ErrMalformed = errors.New("malformed coupon")
)

var hundred = decimal.NewFromInt(100)

// Coupon is a percentage discount redeemable by code.
type Coupon struct {
	Code        string
	Description string
	// Discount is a percentage in the range [0, 100].
	Discount   decimal.Decimal
	ForNewUser bool
	ForMember  bool
	IsPublic   bool
	ExpiresAt  time.Time
}

// Repository provides read-only coupon lookups.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the given code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Validate checks the invariants a stored coupon must hold.
func (c *Coupon) Validate() error {
	if c.Code == "" {
		return errors.Wrap(ErrMalformed, "empty code")
	}
	if c.Discount.IsNegative() || c.Discount.GreaterThan(hundred) {
		return errors.Wrapf(ErrMalformed, "coupon %s: discount %s out of range", c.Code, c.Discount)
	}
	return nil
}

// Expired reports whether the coupon is no longer redeemable at now.
// A zero ExpiresAt never expires.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// DiscountOn returns the amount taken off subtotal. The result is not rounded.
func (c *Coupon) DiscountOn(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(c.Discount).Div(hundred)
}

// Audience names the group a restricted coupon is reserved for.
type Audience string

const (
	AudienceNewUsers Audience = "new users"
	AudienceMembers  Audience = "members"
)

// IneligibleError explains why a caller cannot redeem a coupon.
type IneligibleError struct {
	Code     string
	Audience Audience
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("This coupon is only for %s", e.Audience)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

// CheckNewUser enforces the new-user restriction given the number of orders
// the caller has already placed.
func (c *Coupon) CheckNewUser(priorOrders int) error {
	if c.ForNewUser && priorOrders > 0 {
		return &IneligibleError{Code: c.Code, Audience: AudienceNewUsers}
	}
	return nil
}

// CheckMember enforces the members-only restriction.
func (c *Coupon) CheckMember(member bool) error {
	if c.ForMember && !member {
		return &IneligibleError{Code: c.Code, Audience: AudienceMembers}
	}
	return nil
}
