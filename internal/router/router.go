// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MorseWayne/phone_catalog/internal/api"
	"github.com/MorseWayne/phone_catalog/internal/cache"
	"github.com/MorseWayne/phone_catalog/internal/config"
	"github.com/MorseWayne/phone_catalog/internal/limiter"
	"github.com/MorseWayne/phone_catalog/internal/middleware"
	"github.com/MorseWayne/phone_catalog/internal/resp"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	ProductHandler *api.ProductHandler
	HealthHandler  *api.HealthHandler
	// TokenValidator 为空时写接口不鉴权
	TokenValidator middleware.TokenValidator
	// IdempotencyStore 为空时不启用幂等回放
	IdempotencyStore cache.Cache
	// Registry 为空时不暴露指标
	Registry *prometheus.Registry
	// WriteLimiter 为空时写接口不限流
	WriteLimiter limiter.Limiter
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由和中间件
// 返回的 Handler 外层依次是 CORS、请求 ID、恢复与访问日志。
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	switch cfg.App.Env {
	case "prod":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r.engine = gin.New()
	r.deps = deps
	r.logger = lg

	r.setupMiddleware(cfg)
	r.setupRoutes(cfg)

	var h http.Handler = r.engine
	h = middleware.AccessLog(lg)(h)
	h = middleware.Recovery(lg)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORS)(h)
	return h
}

// setupMiddleware 设置 Gin 中间件
func (r *GinRouter) setupMiddleware(cfg *config.Config) {
	if r.deps.Registry != nil {
		metrics := middleware.NewHTTPMetrics(r.deps.Registry, cfg.Metrics.Namespace)
		r.engine.Use(metrics.Middleware())
	}

	r.engine.NoRoute(func(c *gin.Context) {
		resp.Error(c.Writer, http.StatusNotFound, "Not found", "No route for "+c.Request.Method+" "+c.Request.URL.Path)
	})
	r.engine.HandleMethodNotAllowed = true
	r.engine.NoMethod(func(c *gin.Context) {
		resp.Error(c.Writer, http.StatusMethodNotAllowed, "Method not allowed", c.Request.Method+" is not supported for "+c.Request.URL.Path)
	})
}

// setupRoutes 设置所有路由
func (r *GinRouter) setupRoutes(cfg *config.Config) {
	r.engine.GET("/health", r.wrapHandler(r.deps.HealthHandler.Health))

	if r.deps.Registry != nil {
		r.engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(r.deps.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.engine.Group("/api/v1")
	{
		products := v1.Group("/products")
		{
			products.POST("", r.wrapHandler(r.deps.ProductHandler.CreateProduct, r.writeMiddleware(cfg)...))
			products.GET("", r.wrapHandler(r.deps.ProductHandler.ListProducts))
			products.GET("/:id", r.wrapHandler(r.deps.ProductHandler.GetProduct))
		}
	}
}

// writeMiddleware 写接口的 net/http 中间件，执行顺序为限流、鉴权、幂等回放
func (r *GinRouter) writeMiddleware(cfg *config.Config) []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler
	if r.deps.WriteLimiter != nil {
		mws = append(mws, limiter.Middleware(r.deps.WriteLimiter, limiter.ClientIPKey, r.logger))
	}
	if r.deps.TokenValidator != nil {
		mws = append(mws, middleware.RequireAdmin(r.deps.TokenValidator, r.logger))
	}
	if r.deps.IdempotencyStore != nil {
		mws = append(mws, middleware.Idempotency(r.deps.IdempotencyStore, cfg.App.IdempotencyTTL, r.logger))
	}
	return mws
}

// wrapHandler 将标准的 http.HandlerFunc 包装为 gin.HandlerFunc
// 路由参数通过 Request.PathValue 传给处理器，mws 按顺序由外到内包裹。
func (r *GinRouter) wrapHandler(handler func(http.ResponseWriter, *http.Request), mws ...func(http.Handler) http.Handler) gin.HandlerFunc {
	var h http.Handler = http.HandlerFunc(handler)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return func(c *gin.Context) {
		for _, p := range c.Params {
			c.Request.SetPathValue(p.Key, p.Value)
		}
		h.ServeHTTP(c.Writer, c.Request)
	}
}
