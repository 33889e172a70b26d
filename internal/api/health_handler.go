package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/middleware"
	"github.com/MorseWayne/phone_catalog/internal/resp"
)

// StorePinger 可探测的后端存储
type StorePinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse 健康检查响应，Error 仅在不健康时出现
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	store  StorePinger
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(store StorePinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Health 探测存储连通性
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Warn("health check failed",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		resp.JSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Database:  "disconnected",
			Error:     err.Error(),
			Timestamp: h.now(),
		})
		return
	}

	resp.OK(w, HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: h.now(),
	})
}
