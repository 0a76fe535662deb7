package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	if err := (RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (RateLimitConfig{WindowDuration: time.Second}).Validate(); err == nil {
		t.Error("zero requests should fail")
	}
	if err := (RateLimitConfig{RequestsPerWindow: 1}).Validate(); err == nil {
		t.Error("zero window should fail")
	}
}

func TestInMemoryRateLimitStore(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	ctx := context.Background()

	for i, want := range []int{1, 0} {
		res, _ := store.Allow(ctx, "k", cfg)
		if !res.Allowed || res.Remaining != want {
			t.Fatalf("request %d = %+v, want allowed with %d remaining", i+1, res, want)
		}
	}

	now = now.Add(20 * time.Second)
	res, _ := store.Allow(ctx, "k", cfg)
	if res.Allowed || res.RetryAfter != 40 {
		t.Fatalf("third request = %+v, want blocked with RetryAfter 40", res)
	}
	if res, _ := store.Allow(ctx, "other", cfg); !res.Allowed {
		t.Error("keys must be independent")
	}

	now = now.Add(41 * time.Second)
	if res, _ := store.Allow(ctx, "k", cfg); !res.Allowed {
		t.Error("new window should allow")
	}

	now = now.Add(2 * time.Minute)
	store.Cleanup()
	if len(store.buckets) != 0 {
		t.Errorf("Cleanup() left %d buckets", len(store.buckets))
	}
}

func newRedisStore(t *testing.T) (*RedisRateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimitStore(client), mr
}

func TestRedisRateLimitStore(t *testing.T) {
	store, mr := newRedisStore(t)
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "posts:user:u1", cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed || res.Remaining != 2-i {
			t.Fatalf("request %d = %+v", i+1, res)
		}
	}

	res, err := store.Allow(ctx, "posts:user:u1", cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed || res.RetryAfter < 1 || res.RetryAfter > 60 {
		t.Fatalf("fourth request = %+v, want blocked", res)
	}
	if ttl := mr.TTL("ratelimit:posts:user:u1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %s, want window expiry", ttl)
	}

	if res, _ := store.Allow(ctx, "posts:user:u2", cfg); !res.Allowed {
		t.Error("keys must be independent")
	}

	mr.FastForward(61 * time.Second)
	if res, _ := store.Allow(ctx, "posts:user:u1", cfg); !res.Allowed {
		t.Error("expired window should allow")
	}
}

func TestRedisRateLimitStore_Error(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	if _, err := store.Allow(context.Background(), "k", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}); err == nil {
		t.Error("Allow() should fail when Redis is down")
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, RateLimitConfig) (RateLimitResult, error) {
	return RateLimitResult{}, context.DeadlineExceeded
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	authed := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/scenes/s1/posts", nil)
		return req.WithContext(SetUserID(req.Context(), "u1"))
	}

	t.Run("blocks with envelope", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics()
		_ = metrics.Register(reg)
		h := RateLimiter(NewInMemoryRateLimitStore(), cfg, "posts", UserKeyFunc(), metrics)(ok)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, authed())
		if first.Code != http.StatusCreated || first.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Fatalf("first = %d %v", first.Code, first.Header())
		}

		second := httptest.NewRecorder()
		h.ServeHTTP(second, authed())
		if second.Code != http.StatusTooManyRequests {
			t.Fatalf("second = %d, want 429", second.Code)
		}
		if second.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After")
		}
		var body errorBody
		if err := json.NewDecoder(second.Body).Decode(&body); err != nil || body.Error.Code != "rate_limit_exceeded" {
			t.Errorf("body = %+v, err = %v", body, err)
		}

		blocked := findMetric(t, reg, MetricRateLimitBlocked)
		if len(blocked) != 1 || blocked[0].GetCounter().GetValue() != 1 || labelValue(blocked[0], "scope") != "posts" {
			t.Errorf("blocked metric = %v", blocked)
		}
	})

	t.Run("anonymous requests skip the limiter", func(t *testing.T) {
		h := RateLimiter(NewInMemoryRateLimitStore(), cfg, "posts", UserKeyFunc(), nil)(ok)
		for i := 0; i < 3; i++ {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/scenes/s1/posts", nil))
			if rr.Code != http.StatusCreated {
				t.Fatalf("request %d = %d", i, rr.Code)
			}
		}
	})

	t.Run("store failure allows", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		metrics := NewMetrics()
		_ = metrics.Register(reg)
		h := RateLimiter(failingStore{}, cfg, "posts", UserKeyFunc(), metrics)(ok)

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authed())
		if rr.Code != http.StatusCreated {
			t.Fatalf("code = %d, want pass-through", rr.Code)
		}
		errs := findMetric(t, reg, MetricRateLimitStoreErrors)
		if len(errs) != 1 || errs[0].GetCounter().GetValue() != 1 {
			t.Errorf("store errors = %v", errs)
		}
	})

	t.Run("scopes are independent", func(t *testing.T) {
		store := NewInMemoryRateLimitStore()
		posts := RateLimiter(store, cfg, "posts", UserKeyFunc(), nil)(ok)
		unhide := RateLimiter(store, cfg, "unhide", UserKeyFunc(), nil)(ok)

		posts.ServeHTTP(httptest.NewRecorder(), authed())
		rr := httptest.NewRecorder()
		unhide.ServeHTTP(rr, authed())
		if rr.Code != http.StatusCreated {
			t.Errorf("unhide = %d, want its own budget", rr.Code)
		}
	})
}
