package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/cache"
	"github.com/MorseWayne/phone_catalog/internal/domain"
)

// fakeProductRepository 内存实现，记录调用次数
type fakeProductRepository struct {
	products     map[string]*domain.Product
	findOneCalls int
	err          error
}

func newFakeProductRepository() *fakeProductRepository {
	return &fakeProductRepository{products: make(map[string]*domain.Product)}
}

func (f *fakeProductRepository) Insert(_ context.Context, p *domain.Product) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.products[p.ID] = p
	return p.ID, nil
}

func (f *fakeProductRepository) FindMany(_ context.Context, _ domain.ProductFilter) ([]*domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductRepository) FindOne(_ context.Context, id string) (*domain.Product, bool, error) {
	f.findOneCalls++
	if f.err != nil {
		return nil, false, f.err
	}
	p, ok := f.products[id]
	return p, ok, nil
}

func (f *fakeProductRepository) Ping(context.Context) error { return f.err }

func TestCachedProductRepository_FindOneCaches(t *testing.T) {
	ctx := context.Background()
	inner := newFakeProductRepository()
	r := NewCachedProductRepository(inner, cache.NewMemoryCache(), time.Minute, zap.NewNop())

	p := &domain.Product{ID: "p1", Name: "Phone X", ImageURL: "http://x/a.jpg", InStock: true,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, err := r.Insert(ctx, p)
	require.NoError(t, err)

	got, found, err := r.FindOne(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Phone X", got.Name)

	got, found, err = r.FindOne(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "http://x/a.jpg", got.ImageURL)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.Equal(t, 1, inner.findOneCalls, "second lookup should be served from cache")
}

func TestCachedProductRepository_NotFoundNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newFakeProductRepository()
	r := NewCachedProductRepository(inner, cache.NewMemoryCache(), time.Minute, zap.NewNop())

	_, found, err := r.FindOne(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = r.FindOne(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, inner.findOneCalls)
}

func TestCachedProductRepository_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	inner := newFakeProductRepository()
	inner.err = errors.New("connection refused")
	r := NewCachedProductRepository(inner, cache.NewNullCache(), time.Minute, zap.NewNop())

	_, _, err := r.FindOne(ctx, "p1")
	assert.Error(t, err)

	_, err = r.Insert(ctx, &domain.Product{ID: "p1"})
	assert.Error(t, err)

	_, err = r.FindMany(ctx, domain.ProductFilter{})
	assert.Error(t, err)

	assert.Error(t, r.Ping(ctx))
}
