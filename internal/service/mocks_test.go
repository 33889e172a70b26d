package service

import (
	"context"
	"sync"

	"github.com/MorseWayne/phone_catalog/internal/domain"
)

// mockProductRepository 商品仓储的内存实现
type mockProductRepository struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	inserts  int
	filters  []domain.ProductFilter
	err      error
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[string]*domain.Product)}
}

func (m *mockProductRepository) Insert(_ context.Context, p *domain.Product) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.inserts++
	m.products[p.ID] = p
	return p.ID, nil
}

func (m *mockProductRepository) FindMany(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.filters = append(m.filters, filter)

	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if v, ok := filter["brand"]; ok && p.Brand != v {
			continue
		}
		if v, ok := filter["category"]; ok && p.Category != v {
			continue
		}
		if v, ok := filter["in_stock"]; ok && p.InStock != v {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepository) FindOne(_ context.Context, id string) (*domain.Product, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *mockProductRepository) Ping(context.Context) error { return m.err }

// validationResult 单个 URL 的预设校验结果
type validationResult struct {
	ok  bool
	err error
}

// mockImageValidator 按 URL 返回预设结果，未预设的 URL 视为可访问
type mockImageValidator struct {
	mu      sync.Mutex
	results map[string]validationResult
	calls   []string
}

func newMockImageValidator() *mockImageValidator {
	return &mockImageValidator{results: make(map[string]validationResult)}
}

func (m *mockImageValidator) Validate(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	if r, ok := m.results[url]; ok {
		return r.ok, r.err
	}
	return true, nil
}

func (m *mockImageValidator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockEventPublisher 记录发布的事件
type mockEventPublisher struct {
	mu        sync.Mutex
	published []*domain.Product
	err       error
}

func (m *mockEventPublisher) PublishProductCreated(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, p)
	return m.err
}
