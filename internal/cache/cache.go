// Package cache 提供缓存抽象及内存、空实现，Redis 实现见 redis_cache.go。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss 键不存在、已过期或缓存被禁用
var ErrCacheMiss = errors.New("cache miss")

// DefaultMaxEntries 内存缓存默认容量
const DefaultMaxEntries = 10000

// Cache 定义缓存操作接口，值统一以 JSON 编码存储
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// SetNX 仅当键不存在（或已过期）时写入，返回是否写入成功
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryCache 进程内缓存，用于开发、测试以及 Redis 不可用时的降级
// 条目数达到上限时先清理过期项，仍然已满则淘汰最早过期的一项。
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption 内存缓存可选项
type MemoryOption func(*MemoryCache)

// WithMaxEntries 设置容量上限，小于等于 0 时使用默认值
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryCache) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// withClock 替换时钟，测试用
func withClock(now func() time.Time) MemoryOption {
	return func(m *MemoryCache) {
		m.now = now
	}
}

// NewMemoryCache 创建内存缓存实例
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get 读取并解码缓存值，过期项按未命中处理并顺带删除
func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(e.value, dest)
}

// Set 写入缓存值
func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = memoryEntry{value: data, expiresAt: m.now().Add(expiration)}
	return nil
}

// SetNX 检查与写入在同一把锁内完成
func (m *MemoryCache) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, exists := m.entries[key]; exists {
		if now.Before(e.expiresAt) {
			return false, nil
		}
		delete(m.entries, key)
	}
	if len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = memoryEntry{value: data, expiresAt: now.Add(expiration)}
	return true, nil
}

// evictLocked 腾出至少一个位置，调用方须持有锁
func (m *MemoryCache) evictLocked() {
	now := m.now()
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if len(m.entries) >= m.maxEntries && oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// Len 当前条目数（含尚未清理的过期项）
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Del 删除缓存值
func (m *MemoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Ping 内存缓存始终可用
func (m *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close 清空所有条目
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// NullCache 禁用缓存时使用，读取总是未命中
type NullCache struct{}

// NewNullCache 创建空缓存实例
func NewNullCache() *NullCache {
	return &NullCache{}
}

func (NullCache) Get(context.Context, string, interface{}) error { return ErrCacheMiss }

func (NullCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }

// SetNX 不保存任何内容，总是视为写入成功
func (NullCache) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return true, nil
}

func (NullCache) Del(context.Context, ...string) error { return nil }

func (NullCache) Ping(context.Context) error { return nil }

func (NullCache) Close() error { return nil }
