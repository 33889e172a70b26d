package repo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/cache"
	"github.com/MorseWayne/phone_catalog/internal/domain"
)

// CachedProductRepository 带缓存的商品仓储
// 商品创建后不可修改，按 ID 缓存的条目不会过时；列表查询组合太多，不缓存。
type CachedProductRepository struct {
	repo   ProductRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProductRepository 创建带缓存的商品仓储
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) ProductRepository {
	return &CachedProductRepository{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Insert 写入商品（清除相关缓存）
func (r *CachedProductRepository) Insert(ctx context.Context, product *domain.Product) (string, error) {
	id, err := r.repo.Insert(ctx, product)
	if err != nil {
		return "", err
	}

	if err := r.cache.Del(ctx, productCacheKey(id)); err != nil {
		r.logger.Warn("failed to evict product cache", zap.String("id", id), zap.Error(err))
	}

	return id, nil
}

// FindMany 查询商品列表（直接透传）
func (r *CachedProductRepository) FindMany(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	return r.repo.FindMany(ctx, filter)
}

// FindOne 根据 ID 获取商品（带缓存）
// 缓存中保存的是存储层原样数据，迁移由上层负责。
func (r *CachedProductRepository) FindOne(ctx context.Context, id string) (*domain.Product, bool, error) {
	key := productCacheKey(id)

	var product domain.Product
	err := r.cache.Get(ctx, key, &product)
	if err == nil {
		return &product, true, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("failed to read product cache", zap.String("id", id), zap.Error(err))
	}

	// 缓存未命中，从数据库获取
	result, found, err := r.repo.FindOne(ctx, id)
	if err != nil || !found {
		return result, found, err
	}

	if err := r.cache.Set(ctx, key, result, r.ttl); err != nil {
		r.logger.Warn("failed to write product cache", zap.String("id", id), zap.Error(err))
	}

	return result, true, nil
}

// Ping 探测底层存储（不探测缓存）
func (r *CachedProductRepository) Ping(ctx context.Context) error {
	return r.repo.Ping(ctx)
}

func productCacheKey(id string) string {
	return "product:id:" + id
}
