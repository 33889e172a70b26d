// Package service 实现业务逻辑层，协调存储与外部校验完成商品目录的读写。
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MorseWayne/phone_catalog/internal/domain"
	"github.com/MorseWayne/phone_catalog/internal/repo"
)

// maxConcurrentChecks 并发校验时同时进行的 HEAD 请求上限
const maxConcurrentChecks = 8

// ErrProductNotFound 商品不存在
var ErrProductNotFound = errors.New("product not found")

// ImageValidationError 某张图片未通过校验
// Index 从 0 开始；Err 为 nil 表示服务端返回了非 2xx，否则为请求失败原因。
type ImageValidationError struct {
	Index int
	URL   string
	Err   error
}

func (e *ImageValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to validate image url %d (%s): %v", e.Index+1, e.URL, e.Err)
	}
	return fmt.Sprintf("image url %d is not accessible: %s", e.Index+1, e.URL)
}

func (e *ImageValidationError) Unwrap() error {
	return e.Err
}

// Inaccessible 服务端明确返回非 2xx
func (e *ImageValidationError) Inaccessible() bool {
	return e.Err == nil
}

// ProductService 定义商品业务逻辑接口
type ProductService interface {
	// CreateProduct 校验全部图片后写入新商品，返回存储层 ID
	CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (string, error)
	// ListProducts 按过滤条件查询，每个结果都已完成图片迁移
	ListProducts(ctx context.Context, query domain.ProductQuery) ([]*domain.Product, error)
	// GetProduct 按 ID 查询，不存在时返回 ErrProductNotFound
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// EventPublisher 发布商品变更事件
type EventPublisher interface {
	PublishProductCreated(ctx context.Context, product *domain.Product) error
}

// Option 商品服务可选项
type Option func(*productService)

// WithConcurrentValidation 并发校验所有图片，报告下标最小的失败项
func WithConcurrentValidation(enabled bool) Option {
	return func(s *productService) {
		s.concurrent = enabled
	}
}

// WithEventPublisher 商品写入成功后发布创建事件，发布失败只记录日志
func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *productService) {
		s.events = publisher
	}
}

// productService 实现ProductService接口
type productService struct {
	productRepo repo.ProductRepository
	validator   ImageValidator
	logger      *zap.Logger
	concurrent  bool
	events      EventPublisher
}

// NewProductService 创建商品服务实例
func NewProductService(productRepo repo.ProductRepository, validator ImageValidator, logger *zap.Logger, opts ...Option) ProductService {
	s := &productService{
		productRepo: productRepo,
		validator:   validator,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProduct 创建商品
func (s *productService) CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (string, error) {
	if err := s.validateImages(ctx, req.Images); err != nil {
		return "", err
	}

	product := domain.NewProduct(req)
	id, err := s.productRepo.Insert(ctx, product)
	if err != nil {
		return "", fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created",
		zap.String("id", id),
		zap.String("name", product.Name),
		zap.Int("images", len(product.Images)),
	)

	if s.events != nil {
		product.ID = id
		if err := s.events.PublishProductCreated(ctx, product); err != nil {
			s.logger.Warn("failed to publish product created event", zap.String("id", id), zap.Error(err))
		}
	}
	return id, nil
}

// validateImages 按顺序校验，遇到第一个失败立即停止
func (s *productService) validateImages(ctx context.Context, urls []string) error {
	if s.concurrent {
		return s.validateImagesConcurrently(ctx, urls)
	}

	for i, url := range urls {
		ok, err := s.validator.Validate(ctx, url)
		if err != nil || !ok {
			return &ImageValidationError{Index: i, URL: url, Err: err}
		}
	}
	return nil
}

// validateImagesConcurrently 并行校验全部图片
// 每个 URL 都会被检查，结果按下标收集，保证报告的失败项与顺序校验一致。
func (s *productService) validateImagesConcurrently(ctx context.Context, urls []string) error {
	failures := make([]*ImageValidationError, len(urls))

	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for i, url := range urls {
		g.Go(func() error {
			ok, err := s.validator.Validate(ctx, url)
			if err != nil || !ok {
				failures[i] = &ImageValidationError{Index: i, URL: url, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failures {
		if f != nil {
			return f
		}
	}
	return nil
}

// ListProducts 获取商品列表
func (s *productService) ListProducts(ctx context.Context, query domain.ProductQuery) ([]*domain.Product, error) {
	products, err := s.productRepo.FindMany(ctx, query.Filter())
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	for _, p := range products {
		p.MigrateImages()
	}
	return products, nil
}

// GetProduct 获取单个商品
func (s *productService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, found, err := s.productRepo.FindOne(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !found {
		return nil, ErrProductNotFound
	}

	product.MigrateImages()
	return product, nil
}
