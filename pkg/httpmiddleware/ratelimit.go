package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Store counts requests. If nil, an in-memory sliding window is used,
	// which only limits per process.
	Store RateLimitStore
}

// RateLimitResult is the outcome of counting one request.
type RateLimitResult struct {
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RateLimitStore counts a request for key and reports whether it is within
// limit requests per window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateLimitResult, error)
}

// entry tracks request counts across two adjacent windows for the sliding
// window algorithm.
type entry struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

// memoryStore is a process local sliding window RateLimitStore.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*entry)}
}

func (s *memoryStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{currStart: now}
		s.entries[key] = e
	}

	if now.Sub(e.currStart) >= window {
		e.prevCount = e.currCount
		e.prevStart = e.currStart
		e.currCount = 0
		e.currStart = now.Truncate(window)
		if now.Sub(e.prevStart) >= 2*window {
			e.prevCount = 0
		}
	}

	// Weight the previous window by how much of it overlaps the sliding one.
	elapsed := now.Sub(e.currStart)
	overlap := max(1.0-elapsed.Seconds()/window.Seconds(), 0)
	effective := e.prevCount*overlap + e.currCount
	res := RateLimitResult{ResetAt: e.currStart.Add(window)}

	if effective >= float64(limit) {
		return res, nil
	}

	e.currCount++
	effective++
	res.Allowed = true
	res.Remaining = max(int(float64(limit)-effective), 0)
	return res, nil
}

// cleanup removes entries whose windows have fully expired.
func (s *memoryStore) cleanup(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if now.Sub(e.currStart) >= 2*window {
			delete(s.entries, key)
		}
	}
}

func (s *memoryStore) startCleanup(ctx context.Context, window time.Duration) {
	go func() {
		ticker := time.NewTicker(2 * window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.cleanup(now, window)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-key rate limit. When
// the limit is exceeded, it responds with 429 Too Many Requests and a JSON
// body. Every counted response includes X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset headers.
//
// Store errors are logged and the request is let through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	if cfg.Store == nil {
		cfg.Store = newMemoryStore()
	}
	return rateLimitMiddleware(cfg)
}

// RateLimitWithCleanup is like RateLimit but, for the in-memory store,
// starts a goroutine evicting expired entries every 2x the window. The
// goroutine stops when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Store == nil {
		s := newMemoryStore()
		s.startCleanup(ctx, cfg.Window)
		cfg.Store = s
	}
	return RateLimit(cfg)
}

func rateLimitMiddleware(cfg RateLimitConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := cfg.KeyFunc(r)

			res, err := cfg.Store.Allow(ctx, key, cfg.Max, cfg.Window, time.Now())
			if err != nil {
				zctx.From(ctx).Warn("Rate limit store failed", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := max(time.Until(res.ResetAt), 0)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				var e jx.Encoder
				e.ObjStart()
				e.FieldStart("code")
				e.Int(http.StatusTooManyRequests)
				e.FieldStart("message")
				e.Str("rate limit exceeded")
				e.ObjEnd()
				_, _ = w.Write(e.Bytes())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// defaultKeyFunc extracts the client IP from the request, checking
// X-Forwarded-For first, then X-Real-IP, then falling back to RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For may contain a comma-separated list; use the first.
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
