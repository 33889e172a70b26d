// Package domain 定义商品目录的领域模型和核心业务规则。
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// 约定的商品分类（不强制校验）
const (
	CategoryPhone     = "Phone"
	CategoryAccessory = "Accessory"
)

// ProductSpecs 商品技术参数，每一项仅在已知时出现
type ProductSpecs struct {
	ScreenSize *string `json:"screen_size,omitempty"`
	RAM        *string `json:"ram,omitempty"`
	Storage    *string `json:"storage,omitempty"`
	Battery    *string `json:"battery,omitempty"`
	Camera     *string `json:"camera,omitempty"`
	Processor  *string `json:"processor,omitempty"`
}

// Product 商品领域模型
// Price 以最小货币单位（分）计价，避免浮点误差。
// ImageURL 是旧版单图字段，只为兼容历史数据保留，新商品一律使用 Images。
type Product struct {
	ID          string        `json:"_id,omitempty"`
	Name        string        `json:"name"`
	Brand       string        `json:"brand"`
	Category    string        `json:"category"`
	Price       uint32        `json:"price"`
	Description string        `json:"description"`
	Images      []string      `json:"images,omitempty"`
	ImageURL    string        `json:"image_url,omitempty"`
	Specs       *ProductSpecs `json:"specs,omitempty"`
	InStock     bool          `json:"in_stock"`
	CreatedAt   time.Time     `json:"created_at"`
}

// MigrateImages 将旧版 image_url 迁移为 images 数组，可重复调用
func (p *Product) MigrateImages() {
	if len(p.Images) == 0 && p.ImageURL != "" {
		p.Images = []string{p.ImageURL}
	}
}

// PrimaryImage 返回主图：images 第一项，否则旧版 image_url
func (p *Product) PrimaryImage() (string, bool) {
	if len(p.Images) > 0 {
		return p.Images[0], true
	}
	if p.ImageURL != "" {
		return p.ImageURL, true
	}
	return "", false
}

// CreateProductRequest 创建商品请求
// images 必须出现（可以为空数组），in_stock 缺省为 true。
type CreateProductRequest struct {
	Name        string
	Brand       string
	Category    string
	Price       uint32
	Description string
	Images      []string
	Specs       *ProductSpecs
	InStock     *bool
}

// createProductPayload 是请求体的线上形态，指针字段用来区分“缺失”和“零值”
type createProductPayload struct {
	Name        *string       `json:"name" binding:"required"`
	Brand       *string       `json:"brand" binding:"required"`
	Category    *string       `json:"category" binding:"required"`
	Price       *uint32       `json:"price" binding:"required"`
	Description *string       `json:"description" binding:"required"`
	Images      *[]string     `json:"images" binding:"required"`
	Specs       *ProductSpecs `json:"specs"`
	InStock     *bool         `json:"in_stock"`
}

// ErrMissingField 请求体缺少必填字段
var ErrMissingField = errors.New("missing required field")

var payloadValidator = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// UnmarshalJSON 解析请求体并检查必填字段
func (r *CreateProductRequest) UnmarshalJSON(data []byte) error {
	var p createProductPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	if err := payloadValidator.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, "`"+fe.Field()+"`")
			}
			return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
		}
		return err
	}

	*r = CreateProductRequest{
		Name:        *p.Name,
		Brand:       *p.Brand,
		Category:    *p.Category,
		Price:       *p.Price,
		Description: *p.Description,
		Images:      *p.Images,
		Specs:       p.Specs,
		InStock:     p.InStock,
	}
	return nil
}

// NewProduct 由创建请求生成新商品：分配新 ID、记录创建时间，不做字段校验
func NewProduct(req *CreateProductRequest) *Product {
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}

	images := req.Images
	if images == nil {
		images = []string{}
	}

	return &Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Brand:       req.Brand,
		Category:    req.Category,
		Price:       req.Price,
		Description: req.Description,
		Images:      images,
		Specs:       req.Specs,
		InStock:     inStock,
		CreatedAt:   time.Now().UTC(),
	}
}

// ProductQuery 商品列表过滤条件，nil 表示该字段不做约束
type ProductQuery struct {
	Brand    *string `json:"brand,omitempty"`
	Category *string `json:"category,omitempty"`
	InStock  *bool   `json:"in_stock,omitempty"`
}

// ProductFilter 字段名到精确匹配值的映射，空映射匹配全部商品
type ProductFilter map[string]any

// ParseProductQuery 从查询串解析过滤条件
// 出现的参数即参与过滤（包括空值），in_stock 必须是布尔值。
func ParseProductQuery(values url.Values) (ProductQuery, error) {
	var q ProductQuery

	if values.Has("brand") {
		brand := values.Get("brand")
		q.Brand = &brand
	}
	if values.Has("category") {
		category := values.Get("category")
		q.Category = &category
	}
	if values.Has("in_stock") {
		inStock, err := strconv.ParseBool(values.Get("in_stock"))
		if err != nil {
			return ProductQuery{}, fmt.Errorf("in_stock must be true or false: %w", err)
		}
		q.InStock = &inStock
	}

	return q, nil
}

// Filter 构造精确匹配过滤条件
func (q ProductQuery) Filter() ProductFilter {
	filter := ProductFilter{}
	if q.Brand != nil {
		filter["brand"] = *q.Brand
	}
	if q.Category != nil {
		filter["category"] = *q.Category
	}
	if q.InStock != nil {
		filter["in_stock"] = *q.InStock
	}
	return filter
}
