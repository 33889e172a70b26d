package limiter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter 进程内令牌桶，每个 key 一个桶
// 长时间未使用的桶按 idleTTL 周期批量清理，单次 Allow 不做全量扫描。
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	buckets   map[string]*memoryBucket
	lastSweep time.Time
	now       func() time.Time
}

type memoryBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter 创建进程内限流器
func NewMemoryLimiter(config Config) (*MemoryLimiter, error) {
	if config.Rate <= 0 || config.Burst <= 0 || config.Window <= 0 {
		return nil, fmt.Errorf("invalid limiter config: rate=%d burst=%d window=%s", config.Rate, config.Burst, config.Window)
	}
	return &MemoryLimiter{
		limit:   rate.Limit(float64(config.Rate) / config.Window.Seconds()),
		burst:   int(config.Burst),
		idleTTL: 2 * config.Window,
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}, nil
}

// Allow 检查是否允许请求通过
func (m *MemoryLimiter) Allow(_ context.Context, key string) (*LimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.idleTTL {
		m.evictIdle(now)
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &memoryBucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &LimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: time.Duration(math.Ceil(delay.Seconds())) * time.Second,
		}, nil
	}

	return &LimitResult{
		Allowed:   true,
		Remaining: int64(b.limiter.TokensAt(now)),
	}, nil
}

// Reset 重置某个 key 的桶
func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
	return nil
}

func (m *MemoryLimiter) evictIdle(now time.Time) {
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.idleTTL {
			delete(m.buckets, k)
		}
	}
}
