// Package api 提供商品目录的 HTTP API 处理器实现。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/domain"
	"github.com/MorseWayne/phone_catalog/internal/middleware"
	"github.com/MorseWayne/phone_catalog/internal/resp"
	"github.com/MorseWayne/phone_catalog/internal/service"
)

// 错误响应标题
const (
	titleInvalidBody      = "Invalid request body"
	titleInvalidQuery     = "Invalid query parameter"
	titleInvalidImage     = "Invalid image URL"
	titleImageCheckFailed = "Image URL validation error"
	titleNotFound         = "Product not found"
	titleDatabase         = "Database error"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20

// CreateProductResponse 创建成功响应
type CreateProductResponse struct {
	Message    string `json:"message"`
	ID         string `json:"id"`
	InsertedID string `json:"inserted_id"`
}

// ProductHandler 商品相关的HTTP处理器
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler 创建商品处理器实例
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// CreateProduct 创建商品
// POST /api/v1/products
// 客户端断开后校验与写入仍会继续完成。
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	var req domain.CreateProductRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, titleInvalidBody, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	id, err := h.productService.CreateProduct(ctx, &req)
	if err != nil {
		var verr *service.ImageValidationError
		if errors.As(err, &verr) {
			h.logger.Warn("image url validation failed",
				zap.String("request_id", reqID),
				zap.Int("index", verr.Index),
				zap.String("url", verr.URL),
				zap.Error(verr.Err),
			)
			if verr.Inaccessible() {
				resp.Error(w, http.StatusBadRequest, titleInvalidImage,
					fmt.Sprintf("Image URL %d is not accessible: %s", verr.Index+1, verr.URL))
			} else {
				// 请求失败可能是临时的，重试时需要重新校验
				middleware.SkipIdempotencyStore(r.Context())
				resp.Error(w, http.StatusBadRequest, titleImageCheckFailed,
					fmt.Sprintf("Failed to validate image URL %d: %v", verr.Index+1, verr.Err))
			}
			return
		}

		h.logger.Error("create product failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, titleDatabase, "Failed to create product")
		return
	}

	resp.Created(w, CreateProductResponse{
		Message:    "Product created successfully",
		ID:         id,
		InsertedID: id,
	})
}

// ListProducts 获取商品列表
// GET /api/v1/products?brand=&category=&in_stock=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())

	query, err := domain.ParseProductQuery(r.URL.Query())
	if err != nil {
		h.logger.Warn("invalid query", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusBadRequest, titleInvalidQuery, err.Error())
		return
	}

	products, err := h.productService.ListProducts(context.WithoutCancel(r.Context()), query)
	if err != nil {
		h.logger.Error("list products failed", zap.String("request_id", reqID), zap.Error(err))
		resp.Error(w, http.StatusInternalServerError, titleDatabase, "Failed to retrieve products")
		return
	}

	if products == nil {
		products = []*domain.Product{}
	}
	resp.OK(w, products)
}

// GetProduct 获取商品详情
// GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.RequestIDFromContext(r.Context())
	id := r.PathValue("id")

	product, err := h.productService.GetProduct(context.WithoutCancel(r.Context()), id)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			h.logger.Warn("product not found", zap.String("request_id", reqID), zap.String("id", id))
			resp.Error(w, http.StatusNotFound, titleNotFound, fmt.Sprintf("No product found with ID: %s", id))
			return
		}

		h.logger.Error("get product failed",
			zap.String("request_id", reqID),
			zap.String("id", id),
			zap.Error(err),
		)
		resp.Error(w, http.StatusInternalServerError, titleDatabase, "Failed to retrieve product")
		return
	}

	resp.OK(w, product)
}
