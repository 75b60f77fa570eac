// Package store serves the public catalog of a seller's storefront.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrMissingUsername is returned when the catalog is requested without a username.
	ErrMissingUsername = errors.New("missing username")
	// ErrNotFound is returned when no active store has the requested username.
	ErrNotFound = errors.New("store not found")
)

// Rating is a customer review of a product.
type Rating struct {
	ID        string
	UserID    string
	ProductID string
	OrderID   string
	Rating    int
	Review    string
	CreatedAt time.Time
}

// Product is a catalog product together with its ratings.
type Product struct {
	product.Product
	Ratings []Rating
}

// Store is a seller's storefront.
type Store struct {
	ID          string
	UserID      string
	Name        string
	Username    string
	Description string
	Address     string
	Logo        string
	Email       string
	Contact     string
	Status      string
	IsActive    bool
	CreatedAt   time.Time
	Products    []Product
}

// Repository provides store catalog reads.
type Repository interface {
	// FindActiveByUsername returns ErrNotFound when no active store matches.
	// username is already normalized to lower case.
	FindActiveByUsername(ctx context.Context, username string) (*Store, error)
}

// Cache stores catalogs by normalized username.
type Cache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, username string) (*Store, error)
	Set(ctx context.Context, username string, s *Store) error
}

// Service resolves public store catalogs through an optional cache.
type Service struct {
	repo  Repository
	cache Cache
}

// NewService creates a catalog Service. cache may be nil.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// NormalizeUsername trims and lower-cases a store username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Catalog returns the active store with the given username, including its
// products and their ratings. Cache failures fall back to the repository.
func (s *Service) Catalog(ctx context.Context, username string) (*Store, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, ErrMissingUsername
	}

	lg := zctx.From(ctx).With(zap.String("store", username))
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, username)
		switch {
		case err != nil:
			lg.Warn("Catalog cache read failed", zap.Error(err))
		case cached != nil:
			return cached, nil
		}
	}

	st, err := s.repo.FindActiveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find store")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, username, st); err != nil {
			lg.Warn("Catalog cache write failed", zap.Error(err))
		}
	}
	return st, nil
}
