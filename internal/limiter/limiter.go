// Package limiter 提供写接口限流：Redis 令牌桶用于多实例部署，内存令牌桶用于单实例或降级。
package limiter

import (
	"context"
	"time"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Remaining  int64         `json:"remaining"`   // 剩余配额
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 检查是否允许请求通过
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// Reset 重置限流状态
	Reset(ctx context.Context, key string) error
}

// Config 限流配置
// 每个 Window 补充 Rate 个令牌，桶容量为 Burst。
type Config struct {
	Rate      int64
	Window    time.Duration
	Burst     int64
	KeyPrefix string
}
