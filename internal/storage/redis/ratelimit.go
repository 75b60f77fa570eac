package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// DefaultRateLimitPrefix namespaces rate limit counters.
const DefaultRateLimitPrefix = "storefront:ratelimit:"

var _ httpmiddleware.RateLimitStore = (*RateLimitStore)(nil)

// RateLimitStore is a fixed window request counter shared by all API
// replicas.
type RateLimitStore struct {
	client *redis.Client
	prefix string
}

// NewRateLimitStore returns a RateLimitStore. An empty prefix selects
// DefaultRateLimitPrefix.
func NewRateLimitStore(client *redis.Client, prefix string) *RateLimitStore {
	if prefix == "" {
		prefix = DefaultRateLimitPrefix
	}
	return &RateLimitStore{client: client, prefix: prefix}
}

// Allow increments the counter of the window containing now.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (httpmiddleware.RateLimitResult, error) {
	start := now.Truncate(window)
	k := s.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	var incr *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, window)
		return nil
	}); err != nil {
		return httpmiddleware.RateLimitResult{}, fmt.Errorf("counting request for %q: %w", key, err)
	}

	count := int(incr.Val())
	return httpmiddleware.RateLimitResult{
		Remaining: max(limit-count, 0),
		ResetAt:   start.Add(window),
		Allowed:   count <= limit,
	}, nil
}
