package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/storefront/internal/domain/store"
)

const (
	// DefaultCatalogPrefix namespaces catalog keys.
	DefaultCatalogPrefix = "storefront:catalog:"
	// DefaultCatalogTTL bounds how stale a cached catalog can be.
	DefaultCatalogTTL = time.Minute
)

var _ store.Cache = (*CatalogCache)(nil)

// CatalogCache caches store catalogs as JSON keyed by username.
type CatalogCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// CatalogOption configures a CatalogCache.
type CatalogOption func(*CatalogCache)

// WithTTL sets the expiry of cached catalogs.
func WithTTL(ttl time.Duration) CatalogOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CatalogOption {
	return func(c *CatalogCache) { c.prefix = prefix }
}

// NewCatalogCache returns a CatalogCache that uses client.
func NewCatalogCache(client *redis.Client, opts ...CatalogOption) *CatalogCache {
	c := &CatalogCache{
		client: client,
		prefix: DefaultCatalogPrefix,
		ttl:    DefaultCatalogTTL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *CatalogCache) key(username string) string {
	return c.prefix + username
}

// Get returns the cached catalog, or (nil, nil) when there is none.
func (c *CatalogCache) Get(ctx context.Context, username string) (*store.Store, error) {
	data, err := c.client.Get(ctx, c.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading catalog %q: %w", username, err)
	}

	var s store.Store
	if err := s.Decode(jx.DecodeBytes(data)); err != nil {
		return nil, fmt.Errorf("decoding catalog %q: %w", username, err)
	}
	return &s, nil
}

// Set stores the catalog with the configured TTL.
func (c *CatalogCache) Set(ctx context.Context, username string, s *store.Store) error {
	var e jx.Encoder
	s.Encode(&e)
	if err := c.client.Set(ctx, c.key(username), e.Bytes(), c.ttl).Err(); err != nil {
		return fmt.Errorf("writing catalog %q: %w", username, err)
	}
	return nil
}

// Invalidate drops the cached catalog for username.
func (c *CatalogCache) Invalidate(ctx context.Context, username string) error {
	if err := c.client.Del(ctx, c.key(username)).Err(); err != nil {
		return fmt.Errorf("invalidating catalog %q: %w", username, err)
	}
	return nil
}
