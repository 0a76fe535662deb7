package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a fixed-window limit.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the whole seconds until the window resets, at least 1
	// when the request was rejected.
	RetryAfter int
}

// RateLimitStore counts requests per key.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, cfg RateLimitConfig) (RateLimitResult, error)
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore keeps fixed-window counters in process memory.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow implements RateLimitStore. It never fails.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, cfg RateLimitConfig) (RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(cfg.WindowDuration)}
		s.buckets[key] = b
	}
	if b.count >= cfg.RequestsPerWindow {
		return RateLimitResult{RetryAfter: retryAfterSeconds(b.windowEnd.Sub(now))}, nil
	}
	b.count++
	return RateLimitResult{Allowed: true, Remaining: cfg.RequestsPerWindow - b.count}, nil
}

// Cleanup drops expired windows.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, b := range s.buckets {
		if !now.Before(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// RedisRateLimitStore shares fixed-window counters between API instances.
// The first INCR of a window sets its expiry.
type RedisRateLimitStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimitStore creates a store keeping counters under "ratelimit:".
func NewRedisRateLimitStore(client redis.UniversalClient) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client, prefix: "ratelimit:"}
}

// Allow implements RateLimitStore.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, cfg RateLimitConfig) (RateLimitResult, error) {
	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, cfg.WindowDuration).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("pexpire %s: %w", redisKey, err)
		}
	}

	if int(count) <= cfg.RequestsPerWindow {
		return RateLimitResult{Allowed: true, Remaining: cfg.RequestsPerWindow - int(count)}, nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("pttl %s: %w", redisKey, err)
	}
	if ttl < 0 {
		// Key lost its expiry; restart the window rather than block forever.
		_ = s.client.PExpire(ctx, redisKey, cfg.WindowDuration).Err()
		ttl = cfg.WindowDuration
	}
	return RateLimitResult{RetryAfter: retryAfterSeconds(ttl)}, nil
}

// KeyFunc extracts a rate limit key from a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// UserKeyFunc keys by the authenticated user; anonymous requests are not limited.
func UserKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if id := GetUserID(r.Context()); id != "" {
			return "user:" + id
		}
		return ""
	}
}

// RateLimiter rejects requests over cfg with 429 and a Retry-After header.
// scope separates counters of different endpoints sharing a store. Store
// failures let the request through and are counted.
func RateLimiter(store RateLimitStore, cfg RateLimitConfig, scope string, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if metrics != nil {
				metrics.IncRateLimitRequests(scope)
			}

			res, err := store.Allow(r.Context(), scope+":"+key, cfg)
			if err != nil {
				slog.WarnContext(r.Context(), "rate limit store unavailable, allowing request",
					"scope", scope, "error", err)
				if metrics != nil {
					metrics.IncRateLimitStoreErrors()
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(scope)
				}
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
				writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
