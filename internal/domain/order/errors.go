package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors returned by the order services. Coupon and product
// sentinels are shared with their packages so errors.Is matches either.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrCouponNotFound     = coupon.ErrNotFound
	ErrCouponIneligible   = coupon.ErrIneligible
	ErrProductNotFound    = product.ErrNotFound
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrAddressNotFound is returned by repositories when the delivery
	// address does not exist or belongs to another user.
	ErrAddressNotFound = errors.New("address not found")
)

// Kind classifies an error returned by the order services.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindInvalidRequest
	KindCouponNotFound
	KindCouponIneligible
	KindProductNotFound
	KindPersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindCouponNotFound:
		return "CouponNotFound"
	case KindCouponIneligible:
		return "CouponIneligible"
	case KindProductNotFound:
		return "ProductNotFound"
	case KindPersistenceFailure:
		return "PersistenceFailure"
	default:
		return "Unknown"
	}
}

// KindOf returns the Kind err is tagged with.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrCouponNotFound):
		return KindCouponNotFound
	case errors.Is(err, ErrCouponIneligible):
		return KindCouponIneligible
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrPersistenceFailure):
		return KindPersistenceFailure
	default:
		return KindUnknown
	}
}

// InvalidRequestError describes a rejected request field. Missing is set
// when a required field was absent rather than malformed.
type InvalidRequestError struct {
	Field   string
	Reason  string
	Missing bool
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// PersistenceError wraps a storage failure. It matches both
// ErrPersistenceFailure and the underlying cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistenceFailure, e.Err} }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
