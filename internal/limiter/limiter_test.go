package limiter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestMemoryLimiter_Burst(t *testing.T) {
	l, err := NewMemoryLimiter(Config{Rate: 1, Window: time.Minute, Burst: 3})
	if err != nil {
		t.Fatalf("NewMemoryLimiter() error = %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "ip:1.2.3.4")
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed, got %+v, %v", i, res, err)
		}
	}

	res, _ := l.Allow(ctx, "ip:1.2.3.4")
	if res.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("unexpected retry after %s", res.RetryAfter)
	}

	// 其他 key 互不影响
	if res, _ := l.Allow(ctx, "ip:5.6.7.8"); !res.Allowed {
		t.Error("different key should have its own bucket")
	}

	// 补充一个令牌后再次放行
	now = now.Add(time.Minute)
	if res, _ := l.Allow(ctx, "ip:1.2.3.4"); !res.Allowed {
		t.Error("request should be allowed after refill")
	}

	if err := l.Reset(ctx, "ip:1.2.3.4"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if res, _ := l.Allow(ctx, "ip:1.2.3.4"); !res.Allowed || res.Remaining != 2 {
		t.Errorf("after reset expected full bucket, got %+v", res)
	}
}

func TestMemoryLimiter_InvalidConfig(t *testing.T) {
	if _, err := NewMemoryLimiter(Config{Rate: 0, Window: time.Minute, Burst: 1}); err == nil {
		t.Error("expected error for zero rate")
	}
}

type fixedLimiter struct {
	result *LimitResult
	err    error
}

func (f fixedLimiter) Allow(context.Context, string) (*LimitResult, error) { return f.result, f.err }
func (f fixedLimiter) Reset(context.Context, string) error { return nil }

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		limiter    Limiter
		wantStatus int
	}{
		{"allowed", fixedLimiter{result: &LimitResult{Allowed: true, Remaining: 4}}, http.StatusOK},
		{"limited", fixedLimiter{result: &LimitResult{Allowed: false, RetryAfter: 30 * time.Second}}, http.StatusTooManyRequests},
		{"limiter error fails open", fixedLimiter{err: errors.New("redis down")}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(tt.limiter, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Header().Get(RetryAfterHeader) != "30" {
				t.Errorf("Retry-After = %q, want 30", rec.Header().Get(RetryAfterHeader))
			}
		})
	}
}

func TestClientIPKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	if got := ClientIPKey(req); got != "ip:10.0.0.1" {
		t.Errorf("ClientIPKey() = %q", got)
	}
}

func TestTokenBucketLimiter_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	l, err := NewTokenBucketLimiter(client, Config{Rate: 1, Window: time.Minute, Burst: 2, KeyPrefix: "test:limiter"})
	if err != nil {
		t.Fatalf("NewTokenBucketLimiter() error = %v", err)
	}
	key := "ip:" + time.Now().Format("150405.000000")
	defer l.Reset(ctx, key)

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, key)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed, got %+v, %v", i, res, err)
		}
	}
	res, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Error("third request should be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("expected positive retry after, got %s", res.RetryAfter)
	}
}

func TestMemoryLimiter_IdleSweepIsPeriodic(t *testing.T) {
	l, err := NewMemoryLimiter(Config{Rate: 10, Window: time.Second, Burst: 10})
	if err != nil {
		t.Fatalf("NewMemoryLimiter() error = %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "ip:a")
	l.Allow(ctx, "ip:b")

	// ip:a 已闲置超过 idleTTL，但距离上次清理不足一个周期，桶仍保留
	now = now.Add(2*time.Second + time.Millisecond)
	l.lastSweep = now.Add(-time.Second)
	l.Allow(ctx, "ip:c")
	if len(l.buckets) != 3 {
		t.Fatalf("expected no sweep before interval, buckets = %d", len(l.buckets))
	}

	// 到达清理周期后，闲置的 ip:a、ip:b 被移除
	now = now.Add(time.Second)
	l.Allow(ctx, "ip:c")
	if len(l.buckets) != 1 {
		t.Errorf("expected idle buckets evicted, buckets = %d", len(l.buckets))
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{30 * time.Second, 30},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMiddleware_SubSecondRetryAfter(t *testing.T) {
	l := fixedLimiter{result: &LimitResult{Allowed: false, RetryAfter: 300 * time.Millisecond}}
	handler := Middleware(l, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", nil))
	if got := rec.Header().Get(RetryAfterHeader); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}
