// Package repo 实现数据访问层，负责与文档数据库的交互。
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/MorseWayne/phone_catalog/internal/domain"
)

// ProductRepository 定义商品数据访问接口
type ProductRepository interface {
	// Insert 写入一件商品，返回存储层的文档 ID
	Insert(ctx context.Context, product *domain.Product) (string, error)
	// FindMany 按精确匹配条件查询，结果未经图片迁移
	FindMany(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
	// FindOne 按 ID 查询，不存在时 found 为 false 且 err 为 nil
	FindOne(ctx context.Context, id string) (product *domain.Product, found bool, err error)
	// Ping 探测存储是否可达
	Ping(ctx context.Context) error
}

// productDocument 是商品在集合中的存储形态
// 历史文档可能缺少 images、in_stock 或 created_at，由 toDomain 补齐。
type productDocument struct {
	ID          any            `bson:"_id,omitempty"`
	Name        string         `bson:"name"`
	Brand       string         `bson:"brand"`
	Category    string         `bson:"category"`
	Price       int64          `bson:"price"`
	Description string         `bson:"description"`
	Images      []string       `bson:"images"`
	ImageURL    string         `bson:"image_url,omitempty"`
	Specs       *specsDocument `bson:"specs,omitempty"`
	InStock     *bool          `bson:"in_stock,omitempty"`
	CreatedAt   *time.Time     `bson:"created_at,omitempty"`
}

type specsDocument struct {
	ScreenSize *string `bson:"screen_size,omitempty"`
	RAM        *string `bson:"ram,omitempty"`
	Storage    *string `bson:"storage,omitempty"`
	Battery    *string `bson:"battery,omitempty"`
	Camera     *string `bson:"camera,omitempty"`
	Processor  *string `bson:"processor,omitempty"`
}

func toDocument(p *domain.Product) *productDocument {
	inStock := p.InStock
	createdAt := p.CreatedAt
	doc := &productDocument{
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Price:       int64(p.Price),
		Description: p.Description,
		Images:      p.Images,
		ImageURL:    p.ImageURL,
		InStock:     &inStock,
		CreatedAt:   &createdAt,
	}
	if p.ID != "" {
		doc.ID = p.ID
	}
	// images 字段总是写入，没有图片时为空数组
	if doc.Images == nil {
		doc.Images = []string{}
	}
	if p.Specs != nil {
		doc.Specs = &specsDocument{
			ScreenSize: p.Specs.ScreenSize,
			RAM:        p.Specs.RAM,
			Storage:    p.Specs.Storage,
			Battery:    p.Specs.Battery,
			Camera:     p.Specs.Camera,
			Processor:  p.Specs.Processor,
		}
	}
	return doc
}

func (d *productDocument) toDomain() *domain.Product {
	p := &domain.Product{
		ID:          idString(d.ID),
		Name:        d.Name,
		Brand:       d.Brand,
		Category:    d.Category,
		Description: d.Description,
		Images:      d.Images,
		ImageURL:    d.ImageURL,
		InStock:     true,
	}
	if d.Price > 0 {
		p.Price = uint32(d.Price)
	}
	if d.InStock != nil {
		p.InStock = *d.InStock
	}
	if d.CreatedAt != nil {
		p.CreatedAt = d.CreatedAt.UTC()
	} else {
		p.CreatedAt = time.Now().UTC()
	}
	if d.Specs != nil {
		p.Specs = &domain.ProductSpecs{
			ScreenSize: d.Specs.ScreenSize,
			RAM:        d.Specs.RAM,
			Storage:    d.Specs.Storage,
			Battery:    d.Specs.Battery,
			Camera:     d.Specs.Camera,
			Processor:  d.Specs.Processor,
		}
	}
	return p
}

// idString 将存储层 ID 统一转成字符串
func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

// toBSONFilter 将领域过滤条件转成查询文档
// 缺少 in_stock 的历史文档视为有货，因此 in_stock=true 匹配“不等于 false”。
func toBSONFilter(filter domain.ProductFilter) bson.M {
	m := bson.M{}
	for k, v := range filter {
		if k == "in_stock" {
			if b, ok := v.(bool); ok && b {
				m[k] = bson.M{"$ne": false}
				continue
			}
		}
		m[k] = v
	}
	return m
}

// idFilter 按 ID 构造查询：字符串 ID 直接匹配，合法的 ObjectID 十六进制串同时匹配 ObjectID
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

// productRepo 基于 MongoDB 的 ProductRepository 实现
type productRepo struct {
	coll *mongo.Collection
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(coll *mongo.Collection) ProductRepository {
	return &productRepo{coll: coll}
}

// Insert 写入商品
func (r *productRepo) Insert(ctx context.Context, product *domain.Product) (string, error) {
	result, err := r.coll.InsertOne(ctx, toDocument(product))
	if err != nil {
		return "", fmt.Errorf("failed to insert product: %w", err)
	}
	return idString(result.InsertedID), nil
}

// FindMany 查询商品列表
func (r *productRepo) FindMany(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	cursor, err := r.coll.Find(ctx, toBSONFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	products := make([]*domain.Product, 0)
	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products = append(products, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// FindOne 根据 ID 获取商品
func (r *productRepo) FindOne(ctx context.Context, id string) (*domain.Product, bool, error) {
	var doc productDocument
	err := r.coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get product by id: %w", err)
	}
	return doc.toDomain(), true, nil
}

// Ping 探测数据库
func (r *productRepo) Ping(ctx context.Context) error {
	return r.coll.Database().RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}
